package proofs

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Marketen/exitbus-verifier/internal/api/utils"
	"github.com/Marketen/exitbus-verifier/internal/application/domain"
	"github.com/Marketen/exitbus-verifier/internal/metrics"
)

// Verifier is the proof checking surface of clproof.Verifier.
type Verifier interface {
	VerifyValidatorProof(ctx context.Context, beaconBlock domain.ProvableBeaconBlockHeader, witness domain.ValidatorWitness) error
	VerifyHistoricalValidatorProof(
		ctx context.Context,
		beaconBlock domain.ProvableBeaconBlockHeader,
		oldBlock domain.HistoricalHeaderWitness,
		witness domain.ValidatorWitness,
	) error
}

// ExitRequestChecker matches a witness against the batch entry it backs.
type ExitRequestChecker interface {
	CheckExitRequestWitness(req domain.ExitRequestsData, witness domain.ValidatorWitness) error
}

// ValidatorProofRequest optionally names the exit request batch; the witness
// must then match the entry at its exitRequestIndex.
type ValidatorProofRequest struct {
	ProvableHeader domain.ProvableBeaconBlockHeader `json:"provableHeader"`
	Witness        domain.ValidatorWitness          `json:"witness"`
	ExitRequests   *domain.ExitRequestsData         `json:"exitRequests,omitempty"`
}

type HistoricalValidatorProofRequest struct {
	ProvableHeader domain.ProvableBeaconBlockHeader `json:"provableHeader"`
	OldBlock       domain.HistoricalHeaderWitness   `json:"oldBlock"`
	Witness        domain.ValidatorWitness          `json:"witness"`
	ExitRequests   *domain.ExitRequestsData         `json:"exitRequests,omitempty"`
}

type Proofs struct {
	verifier Verifier
	exits    ExitRequestChecker
}

func New(verifier Verifier, exits ExitRequestChecker) *Proofs {
	return &Proofs{verifier, exits}
}

func (p *Proofs) checkExitRequest(req *domain.ExitRequestsData, witness domain.ValidatorWitness) error {
	if req == nil {
		return nil
	}
	return p.exits.CheckExitRequestWitness(*req, witness)
}

func (p *Proofs) handleVerifyValidator(w http.ResponseWriter, req *http.Request) error {
	var body ValidatorProofRequest
	if err := utils.ParseJSON(req.Body, &body); err != nil {
		return utils.BadRequest(err)
	}
	if err := p.checkExitRequest(body.ExitRequests, body.Witness); err != nil {
		return err
	}
	err := p.verifier.VerifyValidatorProof(req.Context(), body.ProvableHeader, body.Witness)
	metrics.ObserveProof("validator", err)
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, utils.M{"valid": true})
}

func (p *Proofs) handleVerifyHistoricalValidator(w http.ResponseWriter, req *http.Request) error {
	var body HistoricalValidatorProofRequest
	if err := utils.ParseJSON(req.Body, &body); err != nil {
		return utils.BadRequest(err)
	}
	if err := p.checkExitRequest(body.ExitRequests, body.Witness); err != nil {
		return err
	}
	err := p.verifier.VerifyHistoricalValidatorProof(req.Context(), body.ProvableHeader, body.OldBlock, body.Witness)
	metrics.ObserveProof("historical_validator", err)
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, utils.M{"valid": true})
}

func (p *Proofs) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("/validator").
		Methods(http.MethodPost).
		Name("proofs_verify_validator").
		HandlerFunc(utils.WrapHandlerFunc(p.handleVerifyValidator))
	sub.Path("/historical-validator").
		Methods(http.MethodPost).
		Name("proofs_verify_historical_validator").
		HandlerFunc(utils.WrapHandlerFunc(p.handleVerifyHistoricalValidator))
}
