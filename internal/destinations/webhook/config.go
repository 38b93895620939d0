package webhook

import (
	"errors"
	"time"

	"github.com/runreveal/kawa"
	"github.com/runreveal/wtmpd/internal/types"
	"golang.org/x/oauth2/clientcredentials"
)

type OAuth2Config struct {
	ClientID     string   `json:"clientID"`
	ClientSecret string   `json:"clientSecret"`
	TokenURL     string   `json:"tokenURL"`
	Scopes       []string `json:"scopes"`
}

type Config struct {
	WebhookURL  string        `json:"webhookURL"`
	BatchSize   int           `json:"batchSize"`
	FlushFreq   time.Duration `json:"flushFreq"`
	BearerToken string        `json:"bearerToken"`
	OAuth2      *OAuth2Config `json:"oauth2"`
}

func (c *Config) Configure() (kawa.Destination[types.Event], error) {
	if c.WebhookURL == "" {
		return nil, errors.New("webhook: webhookURL is required")
	}
	opts := []Option{
		WithWebhookURL(c.WebhookURL),
		WithBatchSize(c.BatchSize),
		WithFlushFrequency(c.FlushFreq),
		WithBearerToken(c.BearerToken),
	}
	if c.OAuth2 != nil {
		opts = append(opts, WithClientCredentials(&clientcredentials.Config{
			ClientID:     c.OAuth2.ClientID,
			ClientSecret: c.OAuth2.ClientSecret,
			TokenURL:     c.OAuth2.TokenURL,
			Scopes:       c.OAuth2.Scopes,
		}))
	}
	return New(opts...), nil
}
