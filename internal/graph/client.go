// Package graph is a minimal client for the Microsoft Graph endpoints the
// background jobs call: Outlook mail send and Planner task listing. The
// remote service is treated as opaque; every call can fail independently.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client represents an authenticated Microsoft Graph client
type Client struct {
	BaseURL    string
	Token      string
	MailSender string
	HTTPClient *http.Client
}

// NewClient creates a new Graph client instance
func NewClient(baseURL, token, mailSender string) *Client {
	return &Client{
		BaseURL:    baseURL,
		Token:      token,
		MailSender: mailSender,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type mailMessage struct {
	Message struct {
		Subject string `json:"subject"`
		Body    struct {
			ContentType string `json:"contentType"`
			Content     string `json:"content"`
		} `json:"body"`
		ToRecipients []struct {
			EmailAddress struct {
				Address string `json:"address"`
			} `json:"emailAddress"`
		} `json:"toRecipients"`
	} `json:"message"`
	SaveToSentItems bool `json:"saveToSentItems"`
}

// SendMail sends a plain-text message from the configured sender mailbox.
func (c *Client) SendMail(ctx context.Context, to, subject, body string) error {
	var msg mailMessage
	msg.Message.Subject = subject
	msg.Message.Body.ContentType = "Text"
	msg.Message.Body.Content = body
	msg.Message.ToRecipients = make([]struct {
		EmailAddress struct {
			Address string `json:"address"`
		} `json:"emailAddress"`
	}, 1)
	msg.Message.ToRecipients[0].EmailAddress.Address = to

	endpoint := fmt.Sprintf("%s/users/%s/sendMail", c.BaseURL, c.MailSender)
	resp, err := c.post(ctx, endpoint, msg)
	if err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("send mail to %s: %s", to, readError(resp))
	}
	return nil
}

type planTasksResponse struct {
	Value []struct {
		ID              string `json:"id"`
		Title           string `json:"title"`
		PercentComplete int    `json:"percentComplete"`
	} `json:"value"`
}

// SyncPlanTasks fetches the task list of a Planner plan and returns how many
// tasks were seen.
func (c *Client) SyncPlanTasks(ctx context.Context, planID string) (int, error) {
	endpoint := fmt.Sprintf("%s/planner/plans/%s/tasks", c.BaseURL, planID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("sync plan %s: %w", planID, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("sync plan %s: %w", planID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("sync plan %s: %s", planID, readError(resp))
	}

	var tasks planTasksResponse
	if err := json.NewDecoder(resp.Body).Decode(&tasks); err != nil {
		return 0, fmt.Errorf("sync plan %s: decode response: %w", planID, err)
	}
	return len(tasks.Value), nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload interface{}) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Content-Type", "application/json")

	return c.HTTPClient.Do(req)
}

// readError extracts a short error description from a non-2xx response.
func readError(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if len(body) == 0 {
		return resp.Status
	}
	return fmt.Sprintf("%s: %s", resp.Status, string(body))
}
