package exits

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/Marketen/exitbus-verifier/internal/api/utils"
	"github.com/Marketen/exitbus-verifier/internal/application/domain"
	"github.com/Marketen/exitbus-verifier/internal/application/services"
)

type SubmitHashRequest struct {
	Hash *common.Hash `json:"hash"`
}

type TriggerRequest struct {
	Data            hexutil.Bytes `json:"data"`
	DataFormat      uint64        `json:"dataFormat"`
	ExitDataIndexes []uint64      `json:"exitDataIndexes"`
}

type Exits struct {
	bus *services.ExitBus
}

func New(bus *services.ExitBus) *Exits {
	return &Exits{bus}
}

func (e *Exits) handleSubmitHash(w http.ResponseWriter, req *http.Request) error {
	var body SubmitHashRequest
	if err := utils.ParseJSON(req.Body, &body); err != nil {
		return utils.BadRequest(err)
	}
	if body.Hash == nil {
		return utils.BadRequest(errors.New("hash: required"))
	}
	status, err := e.bus.SubmitExitRequestsHash(*body.Hash)
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, status)
}

func (e *Exits) handleSubmitData(w http.ResponseWriter, req *http.Request) error {
	var body domain.ExitRequestsData
	if err := utils.ParseJSON(req.Body, &body); err != nil {
		return utils.BadRequest(err)
	}
	result, err := e.bus.SubmitExitRequestsData(req.Context(), body)
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, result)
}

func (e *Exits) handleTrigger(w http.ResponseWriter, req *http.Request) error {
	var body TriggerRequest
	if err := utils.ParseJSON(req.Body, &body); err != nil {
		return utils.BadRequest(err)
	}
	reqs, err := e.bus.TriggerExits(req.Context(), domain.ExitRequestsData{Data: body.Data, DataFormat: body.DataFormat}, body.ExitDataIndexes)
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, reqs)
}

func (e *Exits) handleGetHistory(w http.ResponseWriter, req *http.Request) error {
	var hash common.Hash
	if err := hash.UnmarshalText([]byte(mux.Vars(req)["hash"])); err != nil {
		return utils.BadRequest(errors.WithMessage(err, "hash"))
	}
	status, err := e.bus.GetDeliveryHistory(hash)
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, status)
}

func (e *Exits) handleGetPending(w http.ResponseWriter, req *http.Request) error {
	pending, err := e.bus.PendingBatches()
	if err != nil {
		return err
	}
	hashes := make([]common.Hash, 0, len(pending))
	for _, b := range pending {
		hashes = append(hashes, b.Hash)
	}
	return utils.WriteJSON(w, hashes)
}

func (e *Exits) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("").
		Methods(http.MethodPost).
		Name("exits_submit_data").
		HandlerFunc(utils.WrapHandlerFunc(e.handleSubmitData))
	sub.Path("/hashes").
		Methods(http.MethodPost).
		Name("exits_submit_hash").
		HandlerFunc(utils.WrapHandlerFunc(e.handleSubmitHash))
	sub.Path("/trigger").
		Methods(http.MethodPost).
		Name("exits_trigger").
		HandlerFunc(utils.WrapHandlerFunc(e.handleTrigger))
	sub.Path("/pending").
		Methods(http.MethodGet).
		Name("exits_get_pending").
		HandlerFunc(utils.WrapHandlerFunc(e.handleGetPending))
	sub.Path("/{hash}/history").
		Methods(http.MethodGet).
		Name("exits_get_history").
		HandlerFunc(utils.WrapHandlerFunc(e.handleGetHistory))
}
