package connector

import (
	"bytes"
	"log/slog"
	"net/http"
	"testing"

	"github.com/hitoshi/favhub/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func TestFactory_ForNetwork(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	github := NewGithubConnector(http.DefaultClient, logger)
	twitter := NewTwitterConnector(http.DefaultClient, logger, "ck", "cs")
	stackoverflow := NewStackoverflowConnector(http.DefaultClient, logger, "key")

	factory := NewFactory(github, twitter, stackoverflow)

	tests := []struct {
		network model.Network
		want    Connector
	}{
		{model.NetworkGithub, github},
		{model.NetworkTwitter, twitter},
		{model.NetworkStackoverflow, stackoverflow},
	}

	for _, tt := range tests {
		got, err := factory.ForNetwork(tt.network)
		if err != nil {
			t.Fatalf("ForNetwork(%s) がエラーを返した: %v", tt.network, err)
		}
		if got != tt.want {
			t.Errorf("ForNetwork(%s) が別のコネクタを返した", tt.network)
		}
	}
}

func TestFactory_ForNetwork_Unknown(t *testing.T) {
	factory := NewFactory()

	_, err := factory.ForNetwork(model.Network("myspace"))
	if err == nil {
		t.Fatal("未登録のネットワークでエラーが返されるべき")
	}
}
