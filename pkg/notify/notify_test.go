package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ocular/pkg/config"
	"ocular/pkg/model"
	"ocular/pkg/request"
)

func TestTwilio_Send(t *testing.T) {
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Accounts/AC1/Messages.json", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC1", user)
		assert.Equal(t, "tok", pass)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "+911", r.PostForm.Get("To"))
		assert.Equal(t, "MG1", r.PostForm.Get("MessagingServiceSid"))
		assert.Contains(t, r.PostForm.Get("Body"), "assistance")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM1","status":"queued"}`))
	}))
	defer svr.Close()

	client := request.New(config.RequestConfig{Retries: 1, Timeout: config.Duration(time.Second)}, nil, nil)
	tw := NewTwilio(client, "AC1", "tok", "MG1")
	tw.base = svr.URL

	require.NoError(t, tw.Send(context.Background(), "+911", "needs assistance"))
	assert.Error(t, tw.Send(context.Background(), "", "x"))
}

type partialNotifier struct {
	fail map[string]bool
	sent []string
}

func (p *partialNotifier) Send(ctx context.Context, address, message string) error {
	if p.fail[address] {
		return errors.New("undeliverable")
	}
	p.sent = append(p.sent, address)
	return nil
}

func TestSendAll_ReportsEachFailure(t *testing.T) {
	n := &partialNotifier{fail: map[string]bool{"+2": true, "+3": true}}
	contacts := []model.Contact{{Name: "A", Phone: "+1"}, {Name: "B", Phone: "+2"}, {Name: "C", Phone: "+3"}}

	err := SendAll(context.Background(), n, contacts, func(c model.Contact) string { return "Hi " + c.Name })
	require.Error(t, err)
	assert.Equal(t, []string{"+1"}, n.sent)

	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Contains(t, err.Error(), "B (+2)")
	assert.Contains(t, err.Error(), "C (+3)")
}

func TestLog(t *testing.T) {
	l := &Log{}
	require.NoError(t, SendAll(context.Background(), l, []model.Contact{{Name: "A", Phone: "+1"}}, func(c model.Contact) string { return "hello" }))
	assert.Equal(t, []string{"+1: hello"}, l.Messages())
}
