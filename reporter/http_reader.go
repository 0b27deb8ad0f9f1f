// Reader is a testing facility to read the output of a http reporter.

package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type HttpReader struct {
	serverIP   string // listen ip
	serverPort string // listen port
	client     *http.Client
}

func NewHttpReader(serverIP string, serverPort string) *HttpReader {
	return &HttpReader{
		serverIP:   serverIP,
		serverPort: serverPort,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (hr *HttpReader) url(route string) string {
	return "http://" + hr.serverIP + ":" + hr.serverPort + route
}

// get returns the status code and body of a GET request.
func (hr *HttpReader) get(route string) (int, []byte, error) {
	resp, err := hr.client.Get(hr.url(route))
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func (hr *HttpReader) Healthy() (bool, error) {
	code, _, err := hr.get(ROUTE_HEALTHZ)
	if err != nil {
		return false, err
	}
	return code == http.StatusOK, nil
}

func (hr *HttpReader) Ready() (bool, error) {
	code, _, err := hr.get(ROUTE_READYZ)
	if err != nil {
		return false, err
	}
	return code == http.StatusOK, nil
}

func (hr *HttpReader) GetStatus() (*StatusView, error) {
	code, body, err := hr.get(ROUTE_STATUS)
	if err != nil {
		return nil, err
	}
	if code != http.StatusOK {
		return nil, fmt.Errorf("status route returned %d: %s", code, body)
	}
	view := &StatusView{}
	if err := json.Unmarshal(body, view); err != nil {
		return nil, err
	}
	return view, nil
}

// GetApproval returns nil without error when no approval has the hash.
func (hr *HttpReader) GetApproval(withdrawHash string) (*ApprovalView, error) {
	code, body, err := hr.get(ROUTE_APPROVAL + "?withdraw_hash=" + withdrawHash)
	if err != nil {
		return nil, err
	}
	switch code {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, fmt.Errorf("approval route returned %d: %s", code, body)
	}

	resp := struct {
		Data *ApprovalView `json:"data"`
	}{}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (hr *HttpReader) GetMetrics() (string, error) {
	_, body, err := hr.get(ROUTE_METRICS)
	if err != nil {
		return "", err
	}
	return string(body), nil
}
