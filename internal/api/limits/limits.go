package limits

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/Marketen/exitbus-verifier/internal/api/utils"
	"github.com/Marketen/exitbus-verifier/internal/application/services"
)

type Limits struct {
	controllers map[string]services.LimitController
}

func New(controllers ...services.LimitController) *Limits {
	l := &Limits{controllers: make(map[string]services.LimitController, len(controllers))}
	for _, c := range controllers {
		l.controllers[c.LimiterName()] = c
	}
	return l
}

func (l *Limits) controller(req *http.Request) (services.LimitController, error) {
	name := mux.Vars(req)["name"]
	c, ok := l.controllers[name]
	if !ok {
		return nil, errors.WithMessage(services.ErrUnknownLimiter, name)
	}
	return c, nil
}

func (l *Limits) handleGetAll(w http.ResponseWriter, req *http.Request) error {
	all := make(map[string]services.LimitStatus, len(l.controllers))
	for name, c := range l.controllers {
		all[name] = c.ExitRequestLimit()
	}
	return utils.WriteJSON(w, all)
}

func (l *Limits) handleGetLimit(w http.ResponseWriter, req *http.Request) error {
	c, err := l.controller(req)
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, c.ExitRequestLimit())
}

func (l *Limits) handleSetLimit(w http.ResponseWriter, req *http.Request) error {
	c, err := l.controller(req)
	if err != nil {
		return err
	}
	var params services.LimitParams
	if err := utils.ParseJSON(req.Body, &params); err != nil {
		return utils.BadRequest(err)
	}
	ev, err := c.SetExitRequestLimit(params)
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, ev)
}

func (l *Limits) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("").
		Methods(http.MethodGet).
		Name("limits_get_all").
		HandlerFunc(utils.WrapHandlerFunc(l.handleGetAll))
	sub.Path("/{name}").
		Methods(http.MethodGet).
		Name("limits_get_limit").
		HandlerFunc(utils.WrapHandlerFunc(l.handleGetLimit))
	sub.Path("/{name}").
		Methods(http.MethodPut).
		Name("limits_set_limit").
		HandlerFunc(utils.WrapHandlerFunc(l.handleSetLimit))
}
