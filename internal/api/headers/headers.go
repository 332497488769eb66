package headers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Marketen/exitbus-verifier/internal/api/utils"
	"github.com/Marketen/exitbus-verifier/internal/application/ports"
)

type Headers struct {
	beacon ports.BeaconChainAdapter
}

func New(beacon ports.BeaconChainAdapter) *Headers {
	return &Headers{beacon}
}

func (h *Headers) handleGetProvableHeader(w http.ResponseWriter, req *http.Request) error {
	header, err := h.beacon.GetProvableHeader(req.Context(), mux.Vars(req)["block"])
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, header)
}

func (h *Headers) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("/{block}").
		Methods(http.MethodGet).
		Name("headers_get_provable_header").
		HandlerFunc(utils.WrapHandlerFunc(h.handleGetProvableHeader))
}
