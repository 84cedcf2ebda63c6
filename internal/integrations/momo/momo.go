// Package momo settles value to owner handles through a mobile-money
// aggregator's XML-over-HTTP API.
package momo

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/beevik/etree"
	"github.com/kwachapay/ledger-service/internal/config"
	"github.com/kwachapay/ledger-service/internal/utils"
	"github.com/sirupsen/logrus"
)

// Client handles integration with the mobile-money aggregator
type Client struct {
	url    string
	secret string
	client *http.Client
	log    *logrus.Logger
}

// NewClient initializes a new aggregator client
func NewClient(cfg *config.Config, log *logrus.Logger) *Client {
	return &Client{
		url:    cfg.MomoURL,
		secret: cfg.HMACSecret,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log,
	}
}

// buildCreditRequest creates the XML envelope for a credit instruction
func (c *Client) buildCreditRequest(handle string, amount int64, reference string) string {
	payload := fmt.Sprintf(`<CreditRequest>
		<Handle>%s</Handle>
		<Amount>%d</Amount>
		<Reference>%s</Reference>
	</CreditRequest>`, handle, amount, reference)
	signature := utils.SignPayload(payload, c.secret)
	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
		<Envelope>
			<Signature>%s</Signature>
			%s
		</Envelope>`, signature, payload)
}

// Credit instructs the aggregator to deliver funds to an owner handle.
// An error means no funds moved and the caller must roll back.
func (c *Client) Credit(handle string, amount int64, reference string) error {
	request := c.buildCreditRequest(handle, amount, reference)

	resp, err := c.client.Post(c.url, "application/xml", bytes.NewBufferString(request))
	if err != nil {
		return fmt.Errorf("failed to send credit request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("aggregator returned status %d", resp.StatusCode)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	result := doc.FindElement("//Result")
	if result == nil {
		return fmt.Errorf("response missing Result element")
	}
	if result.Text() != "OK" {
		reason := ""
		if element := doc.FindElement("//Reason"); element != nil {
			reason = element.Text()
		}
		return fmt.Errorf("credit rejected: %s %s", result.Text(), reason)
	}

	c.log.Debugf("Credit settled: %s -> %s", reference, handle)
	return nil
}
