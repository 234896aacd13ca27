package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"GCProject/module/chat/model"
	"GCProject/tools/errs"

	"github.com/go-resty/resty/v2"
)

// Config for the REST collaborator.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// Token returns the current bearer credential. Resolved per request so a
	// refreshed token is picked up without rebuilding the client.
	Token func() string
}

func (c *Config) norm() {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.Token == nil {
		c.Token = func() string { return "" }
	}
}

// Client talks to the chat REST API: message history, message creation, and
// the group CRUD surface. Live room state never comes from here; that is the
// socket's job.
type Client struct {
	http *resty.Client
	conf Config
}

func NewClient(conf Config) *Client {
	conf.norm()
	rc := resty.New().
		SetBaseURL(conf.BaseURL).
		SetTimeout(conf.Timeout).
		SetHeader("Content-Type", "application/json")
	return &Client{http: rc, conf: conf}
}

// Messages fetches the ordered message history of a room.
func (c *Client) Messages(ctx context.Context, roomID string) ([]model.Message, error) {
	var out []model.Message
	resp, err := c.req(ctx).SetResult(&out).Get("/messages/" + roomID)
	if err != nil {
		return nil, errs.ErrFetchFailure.WrapMsg("history request", "roomId", roomID, "err", err)
	}
	if err := c.check(resp, errs.ErrFetchFailure); err != nil {
		return nil, err
	}
	return out, nil
}

// SendMessage creates a message in a room and returns the stored message
// with its server-assigned id.
func (c *Client) SendMessage(ctx context.Context, roomID, content string) (model.Message, error) {
	var out model.Message
	resp, err := c.req(ctx).
		SetBody(map[string]string{"content": content, "roomId": roomID}).
		SetResult(&out).
		Post("/messages")
	if err != nil {
		return model.Message{}, errs.ErrSendFailure.WrapMsg("send request", "roomId", roomID, "err", err)
	}
	if err := c.check(resp, errs.ErrSendFailure); err != nil {
		return model.Message{}, err
	}
	return out, nil
}

// Groups lists all groups visible to the user.
func (c *Client) Groups(ctx context.Context) ([]model.Room, error) {
	var out []model.Room
	resp, err := c.req(ctx).SetResult(&out).Get("/groups")
	if err != nil {
		return nil, errs.ErrFetchFailure.WrapMsg("groups request", "err", err)
	}
	if err := c.check(resp, errs.ErrFetchFailure); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateGroup creates a group (admin-only server side).
func (c *Client) CreateGroup(ctx context.Context, name, description string) (model.Room, error) {
	var out model.Room
	resp, err := c.req(ctx).
		SetBody(map[string]string{"name": name, "description": description}).
		SetResult(&out).
		Post("/groups")
	if err != nil {
		return model.Room{}, errs.ErrSendFailure.WrapMsg("create group", "err", err)
	}
	if err := c.check(resp, errs.ErrSendFailure); err != nil {
		return model.Room{}, err
	}
	return out, nil
}

// JoinGroup adds the user to the group member list.
func (c *Client) JoinGroup(ctx context.Context, groupID string) error {
	resp, err := c.req(ctx).Post("/groups/" + groupID + "/join")
	if err != nil {
		return errs.ErrSendFailure.WrapMsg("join group", "groupId", groupID, "err", err)
	}
	return c.check(resp, errs.ErrSendFailure)
}

// LeaveGroup removes the user from the group member list.
func (c *Client) LeaveGroup(ctx context.Context, groupID string) error {
	resp, err := c.req(ctx).Post("/groups/" + groupID + "/leave")
	if err != nil {
		return errs.ErrSendFailure.WrapMsg("leave group", "groupId", groupID, "err", err)
	}
	return c.check(resp, errs.ErrSendFailure)
}

func (c *Client) req(ctx context.Context) *resty.Request {
	r := c.http.R().SetContext(ctx)
	if tok := c.conf.Token(); tok != "" {
		r.SetHeader("Authorization", "Bearer "+tok)
	}
	return r
}

func (c *Client) check(resp *resty.Response, fallback *errs.CodeError) error {
	switch {
	case resp.StatusCode() == http.StatusUnauthorized,
		resp.StatusCode() == http.StatusForbidden:
		return errs.ErrAuthFailure.WrapMsg("rejected", "status", resp.StatusCode())
	case resp.IsError():
		return fallback.WrapMsg("http error",
			"status", resp.StatusCode(),
			"body", truncate(resp.String(), 200))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s... (%d bytes)", s[:n], len(s))
}
