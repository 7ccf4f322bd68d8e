package api

import (
	"net/http"

	"github.com/absmach/robustfl/coordinator"
	"github.com/absmach/robustfl/pkg/fl"
	"github.com/absmach/supermq"
)

var (
	_ supermq.Response = (*statusResponse)(nil)
	_ supermq.Response = (*modelResponse)(nil)
	_ supermq.Response = (*listRoundsResponse)(nil)
	_ supermq.Response = (*roundResponse)(nil)
	_ supermq.Response = (*checkpointResponse)(nil)
)

type statusResponse struct {
	coordinator.Status
}

func (r statusResponse) Code() int {
	return http.StatusOK
}

func (r statusResponse) Headers() map[string]string {
	return map[string]string{}
}

func (r statusResponse) Empty() bool {
	return false
}

type modelResponse struct {
	coordinator.Model
}

func (r modelResponse) Code() int {
	return http.StatusOK
}

func (r modelResponse) Headers() map[string]string {
	return map[string]string{}
}

func (r modelResponse) Empty() bool {
	return false
}

type listRoundsResponse struct {
	Total  uint64 `json:"total"`
	Rounds []int  `json:"rounds"`
}

func (r listRoundsResponse) Code() int {
	return http.StatusOK
}

func (r listRoundsResponse) Headers() map[string]string {
	return map[string]string{}
}

func (r listRoundsResponse) Empty() bool {
	return false
}

type roundResponse struct {
	fl.RoundRecord
}

func (r roundResponse) Code() int {
	return http.StatusOK
}

func (r roundResponse) Headers() map[string]string {
	return map[string]string{}
}

func (r roundResponse) Empty() bool {
	return false
}

type checkpointResponse struct {
	Version int             `json:"version"`
	Params  fl.ParameterSet `json:"params"`
}

func (r checkpointResponse) Code() int {
	return http.StatusOK
}

func (r checkpointResponse) Headers() map[string]string {
	return map[string]string{}
}

func (r checkpointResponse) Empty() bool {
	return false
}
