package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/imagesof/relay/internal/platform"
)

// alreadySubmittedCode is the API error Reddit reports when a link was
// already posted to the target subreddit with resubmit disabled.
const alreadySubmittedCode = "ALREADY_SUB"

// Submit posts a link into the destination subreddit with resubmission
// disabled, so the platform itself rejects duplicates the in-memory
// recency cache has forgotten.
func (c *Client) Submit(ctx context.Context, destination, title, link string) (platform.Handle, error) {
	form := url.Values{
		"sr":          {destination},
		"title":       {title},
		"url":         {link},
		"kind":        {"link"},
		"resubmit":    {"false"},
		"sendreplies": {"true"},
		"api_type":    {"json"},
	}
	payload, err := c.postForm(ctx, "/api/submit", form)
	if err != nil {
		return "", err
	}
	env, err := decodeEnvelope(payload)
	if err != nil {
		return "", err
	}
	if err := env.apiError(destination); err != nil {
		return "", err
	}
	if env.JSON.Data.Name == "" {
		return "", &platform.PlatformError{Code: "no_thing_name", Message: "submit response missing thing name"}
	}
	return platform.Handle(env.JSON.Data.Name), nil
}

// Annotate attaches a comment to a previously submitted post.
func (c *Client) Annotate(ctx context.Context, handle platform.Handle, text string) error {
	form := url.Values{
		"thing_id": {string(handle)},
		"text":     {text},
		"api_type": {"json"},
	}
	payload, err := c.postForm(ctx, "/api/comment", form)
	if err != nil {
		return err
	}
	env, err := decodeEnvelope(payload)
	if err != nil {
		return err
	}
	return env.apiError("")
}

// envelope is Reddit's api_type=json response shape: errors as
// [code, message, field] triples plus an optional data object.
type envelope struct {
	JSON struct {
		Errors [][]string `json:"errors"`
		Data   struct {
			Name string `json:"name"`
		} `json:"data"`
	} `json:"json"`
}

func decodeEnvelope(payload []byte) (*envelope, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, &platform.PlatformError{
			Code:    "bad_response",
			Message: fmt.Sprintf("decode api response: %v", err),
		}
	}
	return &env, nil
}

func (e *envelope) apiError(destination string) error {
	if len(e.JSON.Errors) == 0 {
		return nil
	}
	first := e.JSON.Errors[0]
	code := ""
	message := ""
	if len(first) > 0 {
		code = first[0]
	}
	if len(first) > 1 {
		message = first[1]
	}
	if code == alreadySubmittedCode {
		return &platform.ConflictError{Destination: destination}
	}
	return &platform.PlatformError{Code: code, Message: message}
}

var _ platform.Publisher = (*Client)(nil)
var _ platform.StreamSource = (*Client)(nil)
