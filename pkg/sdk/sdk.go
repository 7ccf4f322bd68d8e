package sdk

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/absmach/supermq/pkg/errors"
)

const CTJSON string = "application/json"

var ErrUnexpectedStatus = errors.New("unexpected response code")

type SDK interface {
	// Status gets the coordinator's view of the running session.
	//
	// example:
	//  st, _ := sdk.Status()
	//  fmt.Println(st.State, st.Pending)
	Status() (Status, error)

	// Model gets the current global parameters.
	//
	// example:
	//  m, _ := sdk.Model()
	//  fmt.Println(m.Iteration, m.Final)
	Model() (Model, error)

	// ListRounds lists the iterations with a saved round record.
	//
	// example:
	//  page, _ := sdk.ListRounds()
	//  fmt.Println(page.Rounds)
	ListRounds() (RoundPage, error)

	// Round gets the record saved for an iteration.
	//
	// example:
	//  r, _ := sdk.Round(3)
	//  fmt.Println(r.Strategy, r.Metrics)
	Round(iteration int) (Round, error)

	// Checkpoint gets the global parameters saved after an iteration.
	//
	// example:
	//  c, _ := sdk.Checkpoint(3)
	//  fmt.Println(c.Params)
	Checkpoint(iteration int) (Checkpoint, error)
}

type flSDK struct {
	coordinatorURL string
	client         *http.Client
}

type Config struct {
	CoordinatorURL  string
	TLSVerification bool
}

func NewSDK(cfg Config) SDK {
	return &flSDK{
		coordinatorURL: cfg.CoordinatorURL,
		client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: !cfg.TLSVerification,
				},
			},
		},
	}
}

type errorRes struct {
	Error string `json:"error"`
}

func (sdk *flSDK) processRequest(method, reqURL string, data []byte, expectedRespCode int) ([]byte, error) {
	req, err := http.NewRequest(method, reqURL, bytes.NewReader(data))
	if err != nil {
		return []byte{}, err
	}

	req.Header.Add("Content-Type", CTJSON)

	resp, err := sdk.client.Do(req)
	if err != nil {
		return []byte{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return []byte{}, err
	}

	if resp.StatusCode != expectedRespCode {
		var e errorRes
		if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
			return []byte{}, errors.Wrap(ErrUnexpectedStatus, fmt.Errorf("%d: %s", resp.StatusCode, e.Error))
		}

		return []byte{}, errors.Wrap(ErrUnexpectedStatus, fmt.Errorf("%d", resp.StatusCode))
	}

	return body, nil
}
