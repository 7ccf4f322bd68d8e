package sdk

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/absmach/robustfl/pkg/fl"
)

const (
	statusEndpoint      = "/status"
	modelEndpoint       = "/model"
	roundsEndpoint      = "/checkpoints/rounds"
	checkpointsEndpoint = "/checkpoints/models"
)

type Status struct {
	Session       string             `json:"session"`
	State         string             `json:"state"`
	Mode          string             `json:"mode"`
	Strategy      string             `json:"strategy"`
	Iteration     int                `json:"iteration"`
	MaxIterations int                `json:"max_iterations"`
	Roster        []string           `json:"roster"`
	Pending       []string           `json:"pending,omitempty"`
	Preprocessed  bool               `json:"preprocessed"`
	Violations    uint64             `json:"violations"`
	Metrics       map[string]float64 `json:"metrics,omitempty"`
	History       []string           `json:"history"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

type Model struct {
	Iteration int             `json:"iteration"`
	Final     bool            `json:"final"`
	Params    fl.ParameterSet `json:"params"`
}

type RoundPage struct {
	Total  uint64 `json:"total"`
	Rounds []int  `json:"rounds"`
}

type Round struct {
	Session   string             `json:"session"`
	Iteration int                `json:"iteration"`
	Strategy  string             `json:"strategy"`
	Workers   []string           `json:"workers"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
	Duration  time.Duration      `json:"duration"`
	CreatedAt time.Time          `json:"created_at"`
}

type Checkpoint struct {
	Version int             `json:"version"`
	Params  fl.ParameterSet `json:"params"`
}

func (sdk *flSDK) Status() (Status, error) {
	var st Status
	if err := sdk.get(sdk.coordinatorURL+statusEndpoint, &st); err != nil {
		return Status{}, err
	}

	return st, nil
}

func (sdk *flSDK) Model() (Model, error) {
	var m Model
	if err := sdk.get(sdk.coordinatorURL+modelEndpoint, &m); err != nil {
		return Model{}, err
	}

	return m, nil
}

func (sdk *flSDK) ListRounds() (RoundPage, error) {
	var page RoundPage
	if err := sdk.get(sdk.coordinatorURL+roundsEndpoint, &page); err != nil {
		return RoundPage{}, err
	}

	return page, nil
}

func (sdk *flSDK) Round(iteration int) (Round, error) {
	var r Round
	if err := sdk.get(sdk.coordinatorURL+roundsEndpoint+"/"+strconv.Itoa(iteration), &r); err != nil {
		return Round{}, err
	}

	return r, nil
}

func (sdk *flSDK) Checkpoint(iteration int) (Checkpoint, error) {
	var c Checkpoint
	if err := sdk.get(sdk.coordinatorURL+checkpointsEndpoint+"/"+strconv.Itoa(iteration), &c); err != nil {
		return Checkpoint{}, err
	}

	return c, nil
}

func (sdk *flSDK) get(url string, v any) error {
	body, err := sdk.processRequest(http.MethodGet, url, nil, http.StatusOK)
	if err != nil {
		return err
	}

	return json.Unmarshal(body, v)
}
