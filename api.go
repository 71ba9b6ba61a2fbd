package msafe

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/asaskevich/govalidator"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
	"github.com/twitchtv/twirp"
)

func (s *Server) Handler() http.Handler {
	m := chi.NewMux()
	m.Use(middleware.Recoverer)
	m.Use(middleware.RealIP)
	m.Use(middleware.Logger)
	m.Use(middleware.Heartbeat("/hc"))
	m.Use(cors.AllowAll().Handler)
	m.Use(handleAuth(s.cfg.Issuer, s.resolve))

	m.Get("/wallets", s.listWallets)
	m.Post("/wallets", s.createWallet)
	m.Get("/wallets/{index}", s.getEntry)
	m.Get("/me/safes", s.listMySafes)

	m.Route("/safes/{handle}", func(r chi.Router) {
		r.Get("/", s.getSafe)
		r.Get("/events", s.listEvents)
		r.Post("/transactions", s.proposeTransaction)
		r.Get("/transactions/{index}", s.getTransaction)
		r.Post("/transactions/{index}/confirm", s.confirmTransaction)
		r.Post("/transactions/{index}/revoke", s.revokeTransaction)
		r.Post("/transactions/{index}/execute", s.executeTransaction)
		r.Get("/transactions/{index}/confirmations/{owner}", s.isConfirmed)
	})

	return m
}

func renderJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(200)

	_ = json.NewEncoder(w).Encode(v)
}

func renderErr(w http.ResponseWriter, err error) {
	_ = twirp.WriteError(w, toTwirpError(err))
}

func toTwirpError(err error) twirp.Error {
	var te twirp.Error
	if errors.As(err, &te) {
		return te
	}

	code := twirp.Internal
	switch {
	case errors.Is(err, ErrInvalidConfiguration), errors.Is(err, ErrInvalidArgument):
		code = twirp.InvalidArgument
	case errors.Is(err, ErrUnauthorized):
		code = twirp.PermissionDenied
	case errors.Is(err, ErrNotFound):
		code = twirp.NotFound
	case errors.Is(err, ErrAlreadyConfirmed):
		code = twirp.AlreadyExists
	case errors.Is(err, ErrAlreadyExecuted), errors.Is(err, ErrInsufficientConfirmations):
		code = twirp.FailedPrecondition
	case errors.Is(err, ErrSettlementFailed):
		code = twirp.Aborted
	}

	return twirp.NewError(code, err.Error()).WithMeta("kind", ErrorKind(err))
}

func (s *Server) caller(w http.ResponseWriter, r *http.Request) (*User, bool) {
	user, ok := UserFrom(r.Context())
	if !ok {
		renderErr(w, twirp.Unauthenticated.Error("unauthenticated"))
		return nil, false
	}

	return user, true
}

func (s *Server) safe(r *http.Request) (*Wallet, error) {
	handle, err := uuid.Parse(chi.URLParam(r, "handle"))
	if err != nil {
		return nil, twirp.InvalidArgumentError("handle", "invalid")
	}

	return s.registry.Wallet(handle)
}

func indexParam(r *http.Request) (uint64, error) {
	index, err := cast.ToUint64E(chi.URLParam(r, "index"))
	if err != nil {
		return 0, twirp.InvalidArgumentError("index", "invalid")
	}

	return index, nil
}

func (s *Server) createWallet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, ok := s.caller(w, r)
	if !ok {
		return
	}

	var body struct {
		Owners    []string `json:"owners"`
		Threshold int      `json:"threshold"`
	}

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		renderErr(w, twirp.InvalidArgumentError("body", "invalid json"))
		return
	}

	wallet, err := s.registry.CreateWallet(ctx, user.MixinID, body.Owners, body.Threshold)
	if err != nil {
		renderErr(w, err)
		return
	}

	renderJSON(w, wallet.Info())
}

func (s *Server) listWallets(w http.ResponseWriter, r *http.Request) {
	entries := s.registry.Entries()
	renderJSON(w, map[string]interface{}{
		"count":   len(entries),
		"entries": entries,
	})
}

func (s *Server) getEntry(w http.ResponseWriter, r *http.Request) {
	index, err := indexParam(r)
	if err != nil {
		renderErr(w, err)
		return
	}

	e, err := s.registry.Entry(index)
	if err != nil {
		renderErr(w, err)
		return
	}

	renderJSON(w, e)
}

func (s *Server) listMySafes(w http.ResponseWriter, r *http.Request) {
	user, ok := s.caller(w, r)
	if !ok {
		return
	}

	renderJSON(w, s.registry.WalletsOf(user.MixinID))
}

func (s *Server) getSafe(w http.ResponseWriter, r *http.Request) {
	wallet, err := s.safe(r)
	if err != nil {
		renderErr(w, err)
		return
	}

	renderJSON(w, map[string]interface{}{
		"wallet":       wallet.Info(),
		"transactions": wallet.TransactionCount(),
	})
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	wallet, err := s.safe(r)
	if err != nil {
		renderErr(w, err)
		return
	}

	events, err := s.events.ListEvents(r.Context(), wallet.ID())
	if err != nil {
		renderErr(w, err)
		return
	}

	if events == nil {
		events = []*Event{}
	}

	renderJSON(w, events)
}

func (s *Server) proposeTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, ok := s.caller(w, r)
	if !ok {
		return
	}

	wallet, err := s.safe(r)
	if err != nil {
		renderErr(w, err)
		return
	}

	var body struct {
		Recipient string `json:"recipient"`
		Amount    string `json:"amount"`
		Payload   string `json:"payload"`
	}

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		renderErr(w, twirp.InvalidArgumentError("body", "invalid json"))
		return
	}

	amount, err := decimal.NewFromString(body.Amount)
	if err != nil {
		renderErr(w, twirp.InvalidArgumentError("amount", "invalid"))
		return
	}

	if body.Payload != "" && !govalidator.IsHexadecimal(body.Payload) {
		renderErr(w, twirp.InvalidArgumentError("payload", "must be hex"))
		return
	}

	payload, err := hex.DecodeString(body.Payload)
	if err != nil {
		renderErr(w, twirp.InvalidArgumentError("payload", "must be hex"))
		return
	}

	index, err := wallet.Propose(ctx, user.MixinID, body.Recipient, amount, payload)
	if err != nil {
		renderErr(w, err)
		return
	}

	renderJSON(w, map[string]uint64{"index": index})
}

func (s *Server) getTransaction(w http.ResponseWriter, r *http.Request) {
	wallet, err := s.safe(r)
	if err != nil {
		renderErr(w, err)
		return
	}

	index, err := indexParam(r)
	if err != nil {
		renderErr(w, err)
		return
	}

	tx, err := wallet.Transaction(index)
	if err != nil {
		renderErr(w, err)
		return
	}

	renderJSON(w, tx)
}

func (s *Server) isConfirmed(w http.ResponseWriter, r *http.Request) {
	wallet, err := s.safe(r)
	if err != nil {
		renderErr(w, err)
		return
	}

	index, err := indexParam(r)
	if err != nil {
		renderErr(w, err)
		return
	}

	confirmed, err := wallet.IsConfirmedBy(index, chi.URLParam(r, "owner"))
	if err != nil {
		renderErr(w, err)
		return
	}

	renderJSON(w, map[string]bool{"confirmed": confirmed})
}

func (s *Server) confirmTransaction(w http.ResponseWriter, r *http.Request) {
	s.handleTransaction(w, r, (*Wallet).Confirm)
}

func (s *Server) revokeTransaction(w http.ResponseWriter, r *http.Request) {
	s.handleTransaction(w, r, (*Wallet).Revoke)
}

func (s *Server) executeTransaction(w http.ResponseWriter, r *http.Request) {
	s.handleTransaction(w, r, (*Wallet).Execute)
}

type transactionAction func(w *Wallet, ctx context.Context, caller string, index uint64) error

// handleTransaction runs action as the caller and renders the resulting record.
func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request, action transactionAction) {
	ctx := r.Context()
	user, ok := s.caller(w, r)
	if !ok {
		return
	}

	wallet, err := s.safe(r)
	if err != nil {
		renderErr(w, err)
		return
	}

	index, err := indexParam(r)
	if err != nil {
		renderErr(w, err)
		return
	}

	if err := action(wallet, ctx, user.MixinID, index); err != nil {
		renderErr(w, err)
		return
	}

	tx, err := wallet.Transaction(index)
	if err != nil {
		renderErr(w, err)
		return
	}

	renderJSON(w, tx)
}
