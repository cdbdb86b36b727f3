package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/tarancss/stakewallet/lib/block/types"
	"github.com/tarancss/stakewallet/lib/store"
	"github.com/tarancss/stakewallet/lib/util"
)

const maxBody = 1 << 20

// Errors returned to client requests.
var (
	ErrBadBody    = errors.New("malformed JSON body")
	ErrNoStakeKey = errors.New("undefined stake key - missing in uri")
)

// Response defines the data structure returned to the client when a request fails.
type Response struct {
	Error string `json:"error"`
}

// statusOf maps an error to the http status code replied to the client.
func statusOf(err error) int {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrBadBody), errors.Is(err, ErrNoStakeKey),
		errors.Is(err, util.ErrBadID):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrForeignKey):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrUpstreamUnavailable), types.IsUnavailable(err):
		return http.StatusBadGateway
	}

	return http.StatusInternalServerError
}

// message returns the error text replied to the client. Storage errors are not detailed.
func message(status int, err error) string {
	switch status {
	case http.StatusBadGateway:
		return ErrUpstreamUnavailable.Error()
	case http.StatusInternalServerError:
		return "internal storage error"
	}

	return err.Error()
}

// reply writes res with status ok, or the error response for err.
func (w *Wallet) reply(rw http.ResponseWriter, r *http.Request, ok int, res interface{}, err error) {
	rw.Header().Set("Content-Type", "application/json;charset=utf8")

	if err != nil {
		status := statusOf(err)
		if status >= http.StatusInternalServerError {
			w.log.Error("request failed", zap.String("uri", r.RequestURI), zap.Int("status", status),
				zap.String("request_id", requestID(r)), zap.Error(err))
		}

		rw.WriteHeader(status)
		_ = json.NewEncoder(rw).Encode(Response{Error: message(status, err)})

		return
	}

	rw.WriteHeader(ok)

	if res != nil {
		_ = json.NewEncoder(rw).Encode(res)
	}
}

// decode reads a JSON body into v. An empty body leaves v untouched when allowEmpty is set.
func decode(rw http.ResponseWriter, r *http.Request, v interface{}, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(rw, r.Body, maxBody))

	if err := dec.Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}

		return fmt.Errorf("%w: %v", ErrBadBody, err)
	}

	return nil
}

func pathID(r *http.Request) (int64, error) {
	return util.ParseID(mux.Vars(r)["id"])
}

// healthHandler replies OK while the process is serving.
func (w *Wallet) healthHandler(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain;charset=utf8")
	rw.WriteHeader(http.StatusOK)
	_, _ = rw.Write([]byte("OK"))
}

// createUserHandler creates a user. The body, if any, must be a JSON object.
func (w *Wallet) createUserHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res UserResponse

	defer func() { w.reply(rw, r, http.StatusCreated, res, err) }()

	var body struct{}
	if err = decode(rw, r, &body, true); err != nil {
		return
	}

	res, err = w.CreateUser(r.Context())
}

// deleteUserHandler deletes a user and everything it owns.
func (w *Wallet) deleteUserHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	defer func() { w.reply(rw, r, http.StatusNoContent, nil, err) }()

	var id int64
	if id, err = pathID(r); err != nil {
		return
	}

	err = w.DeleteUser(r.Context(), id)
}

// listWalletsHandler replies the wallet records of a user.
func (w *Wallet) listWalletsHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res []store.Wallet

	defer func() { w.reply(rw, r, http.StatusOK, res, err) }()

	var id int64
	if id, err = pathID(r); err != nil {
		return
	}

	res, err = w.ListWallets(r.Context(), id)
}

// createWalletHandler registers a wallet and replies its provisional state.
func (w *Wallet) createWalletHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res WalletResponse

	defer func() { w.reply(rw, r, http.StatusCreated, res, err) }()

	var req CreateWalletRequest
	if err = decode(rw, r, &req, false); err != nil {
		return
	}

	res, err = w.CreateWallet(r.Context(), req)
}

// getWalletHandler replies a wallet with the live state of its stake account.
func (w *Wallet) getWalletHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res WalletResponse

	defer func() { w.reply(rw, r, http.StatusOK, res, err) }()

	var id int64
	if id, err = pathID(r); err != nil {
		return
	}

	res, err = w.GetWalletData(r.Context(), id)
}

// stakeWalletHandler is getWalletHandler for the wallet registered with the stake key in the uri.
func (w *Wallet) stakeWalletHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res WalletResponse

	defer func() { w.reply(rw, r, http.StatusOK, res, err) }()

	key := mux.Vars(r)["stakeKey"]
	if key == "" {
		err = ErrNoStakeKey

		return
	}

	res, err = w.GetWalletByStakeKey(r.Context(), key)
}

// addAddressHandler attaches a payment address to a wallet.
func (w *Wallet) addAddressHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res store.Address

	defer func() { w.reply(rw, r, http.StatusCreated, res, err) }()

	var id int64
	if id, err = pathID(r); err != nil {
		return
	}

	var req AddressRequest
	if err = decode(rw, r, &req, false); err != nil {
		return
	}

	res, err = w.AddAddress(r.Context(), id, req)
}

// listAddressesHandler replies the payment addresses of a wallet.
func (w *Wallet) listAddressesHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res []store.Address

	defer func() { w.reply(rw, r, http.StatusOK, res, err) }()

	var id int64
	if id, err = pathID(r); err != nil {
		return
	}

	res, err = w.ListAddresses(r.Context(), id)
}
