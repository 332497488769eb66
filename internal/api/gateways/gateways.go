package gateways

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/mux"

	"github.com/Marketen/exitbus-verifier/internal/api/utils"
	"github.com/Marketen/exitbus-verifier/internal/application/domain"
	"github.com/Marketen/exitbus-verifier/internal/application/services"
)

type ConsolidationsRequest struct {
	Data hexutil.Bytes `json:"data"`
}

type ConsolidationPairsRequest struct {
	ModuleID       domain.ModuleID       `json:"moduleId"`
	NodeOperatorID domain.NodeOperatorID `json:"nodeOperatorId"`
	SourcePubkeys  hexutil.Bytes         `json:"sourcePubkeys"`
	TargetPubkeys  hexutil.Bytes         `json:"targetPubkeys"`
}

type WithdrawalsRequest struct {
	Pubkeys []domain.BLSPubkey `json:"pubkeys"`
}

// Gateways serves the withdrawal and consolidation request gateways.
type Gateways struct {
	trigger       *services.TriggerGateway
	consolidation *services.ConsolidationGateway
}

func New(trigger *services.TriggerGateway, consolidation *services.ConsolidationGateway) *Gateways {
	return &Gateways{trigger, consolidation}
}

func (g *Gateways) handleAddConsolidations(w http.ResponseWriter, req *http.Request) error {
	var body ConsolidationsRequest
	if err := utils.ParseJSON(req.Body, &body); err != nil {
		return utils.BadRequest(err)
	}
	reqs, err := g.consolidation.AddConsolidationRequests(req.Context(), body.Data)
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, reqs)
}

func (g *Gateways) handleAddConsolidationPairs(w http.ResponseWriter, req *http.Request) error {
	var body ConsolidationPairsRequest
	if err := utils.ParseJSON(req.Body, &body); err != nil {
		return utils.BadRequest(err)
	}
	reqs, err := g.consolidation.AddConsolidationPairs(req.Context(), body.ModuleID, body.NodeOperatorID, body.SourcePubkeys, body.TargetPubkeys)
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, reqs)
}

func (g *Gateways) handleTriggerWithdrawals(w http.ResponseWriter, req *http.Request) error {
	var body WithdrawalsRequest
	if err := utils.ParseJSON(req.Body, &body); err != nil {
		return utils.BadRequest(err)
	}
	reqs, err := g.trigger.TriggerFullWithdrawals(req.Context(), body.Pubkeys)
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, reqs)
}

func (g *Gateways) Mount(root *mux.Router, pathPrefix string) {
	sub := root
	if pathPrefix != "" {
		sub = root.PathPrefix(pathPrefix).Subrouter()
	}

	sub.Path("/consolidations").
		Methods(http.MethodPost).
		Name("gateways_add_consolidations").
		HandlerFunc(utils.WrapHandlerFunc(g.handleAddConsolidations))
	sub.Path("/consolidations/pairs").
		Methods(http.MethodPost).
		Name("gateways_add_consolidation_pairs").
		HandlerFunc(utils.WrapHandlerFunc(g.handleAddConsolidationPairs))
	sub.Path("/withdrawals/trigger").
		Methods(http.MethodPost).
		Name("gateways_trigger_withdrawals").
		HandlerFunc(utils.WrapHandlerFunc(g.handleTriggerWithdrawals))
}
