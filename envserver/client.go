package envserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/zeu5/robot-goal-env/types"
)

// RemoteError is a non 2xx answer from the environment server.
type RemoteError struct {
	Op      string
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("envserver: %s: %d %s", e.Op, e.Status, e.Message)
}

// Client drives an environment served by Server. It implements
// types.GoalEnv so experiments run unchanged against a remote environment.
type Client struct {
	base   string
	client *http.Client
	logger *slog.Logger

	action      *types.Box
	observation *types.DictSpace
	metadata    types.Metadata
}

var _ types.GoalEnv = &Client{}

// Dial connects to the server at addr and fetches its spaces and metadata.
func Dial(ctx context.Context, addr string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		base: "http://" + addr,
		client: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 5 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   5 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		logger: logger,
	}
	return c, c.refresh(ctx)
}

// NewClient wraps an existing http client, base is the server url.
func NewClient(ctx context.Context, base string, client *http.Client, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{base: base, client: client, logger: logger}
	return c, c.refresh(ctx)
}

func (c *Client) refresh(ctx context.Context) error {
	spaces := SpacesResponse{}
	if err := c.do(ctx, http.MethodGet, "/spaces", nil, &spaces); err != nil {
		return err
	}
	c.action = spaces.Action
	c.observation = spaces.Observation
	return c.do(ctx, http.MethodGet, "/metadata", nil, &c.metadata)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		bs, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("envserver: encoding %s request: %w", path, err)
		}
		reader = bytes.NewBuffer(bs)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("envserver: %s: %w", path, err)
	}
	defer resp.Body.Close()

	bs, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("envserver: reading %s response: %w", path, err)
	}
	if resp.StatusCode >= 300 {
		msg := struct {
			Error string `json:"error"`
		}{}
		json.Unmarshal(bs, &msg)
		return &RemoteError{Op: path, Status: resp.StatusCode, Message: msg.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.Unmarshal(bs, out); err != nil {
		return fmt.Errorf("envserver: decoding %s response: %w", path, err)
	}
	return nil
}

func (c *Client) Reset(ctx context.Context, opts types.ResetOptions) (*types.Observation, error) {
	obs := &types.Observation{}
	if err := c.do(ctx, http.MethodPost, "/reset", opts, obs); err != nil {
		return nil, err
	}
	return obs, nil
}

func (c *Client) Step(action []float64) (*types.Observation, float64, bool, types.Info, error) {
	resp := StepResponse{}
	if err := c.do(context.Background(), http.MethodPost, "/step", StepRequest{Action: action}, &resp); err != nil {
		return nil, 0, false, types.Info{}, err
	}
	return resp.Observation, resp.Reward, resp.Done, resp.Info, nil
}

// Render fetches a frame. Human mode renders on the server and returns nil.
func (c *Client) Render(mode string) (image.Image, error) {
	req, err := http.NewRequest(http.MethodGet, c.base+"/render?mode="+url.QueryEscape(mode), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("envserver: /render: %w", err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNoContent:
		return nil, nil
	case resp.StatusCode >= 300:
		msg := struct {
			Error string `json:"error"`
		}{}
		json.NewDecoder(resp.Body).Decode(&msg)
		return nil, &RemoteError{Op: "/render", Status: resp.StatusCode, Message: msg.Error}
	}
	img, err := png.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("envserver: decoding frame: %w", err)
	}
	return img, nil
}

func (c *Client) Close() error {
	return c.do(context.Background(), http.MethodPost, "/close", nil, nil)
}

func (c *Client) Seed(seed *uint64) []uint64 {
	resp := SeedResponse{}
	if err := c.do(context.Background(), http.MethodPost, "/seed", SeedRequest{Seed: seed}, &resp); err != nil {
		c.logger.Warn("seeding remote environment", "err", err)
		return nil
	}
	return resp.Seeds
}

func (c *Client) ActionSpace() *types.Box {
	return c.action
}

func (c *Client) ObservationSpace() *types.DictSpace {
	return c.observation
}

func (c *Client) Metadata() types.Metadata {
	return c.metadata
}

// ComputeReward asks the server. A transport failure yields NaN.
func (c *Client) ComputeReward(achieved, desired []float64, info types.Info) float64 {
	resp := RewardResponse{}
	req := RewardRequest{AchievedGoal: achieved, DesiredGoal: desired, Info: info}
	if err := c.do(context.Background(), http.MethodPost, "/reward", req, &resp); err != nil {
		c.logger.Warn("computing remote reward", "err", err)
		return math.NaN()
	}
	return resp.Reward
}
