package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/vocdoni/skillrating/api"
)

// APIError is a non 200 response of the API.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %d (code %d): %s", errCodeNot200, e.Status, e.Code, e.Message)
}

// IsCode reports whether err is an APIError with the given code.
func IsCode(err error, code int) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.Code == code
}

// endpoint fills the {param} placeholders of an api route, params being
// name/value pairs.
func endpoint(route string, params ...string) string {
	for i := 0; i < len(params)-1; i += 2 {
		route = strings.ReplaceAll(route, "{"+params[i]+"}", params[i+1])
	}
	return route
}

// call performs a request and decodes a successful JSON response into out.
func (c *HTTPclient) call(method string, signed bool, body, out any, params []string, urlPath string) error {
	var (
		data   []byte
		status int
		err    error
	)
	if signed {
		data, status, err = c.SignedRequest(method, body, urlPath)
	} else {
		data, status, err = c.Request(method, body, params, urlPath)
	}
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		apiErr := &APIError{Status: status}
		var resp api.ErrorResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			apiErr.Message = strings.TrimSpace(string(data))
		} else {
			apiErr.Code, apiErr.Message = resp.Code, resp.Error
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
