package wallet

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const timeout = 15

// RequestIDHeader carries the id of a request. It is generated when the client does not send one.
const RequestIDHeader = "X-Request-ID"

type ctxKey struct{}

// Router returns the handler serving the RESTful API.
func (w *Wallet) Router() http.Handler {
	// API definition: user and wallet records, wallets are replied with the live state of their stake account
	r := mux.NewRouter()
	r.HandleFunc("/health", w.healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/users", w.createUserHandler).Methods(http.MethodPost)
	r.HandleFunc("/users/{id}", w.deleteUserHandler).Methods(http.MethodDelete)
	r.HandleFunc("/users/{id}/wallets", w.listWalletsHandler).Methods(http.MethodGet)
	r.HandleFunc("/wallets", w.createWalletHandler).Methods(http.MethodPost)
	r.HandleFunc("/wallets/stake/{stakeKey}", w.stakeWalletHandler).Methods(http.MethodGet)
	r.HandleFunc("/wallets/{id}", w.getWalletHandler).Methods(http.MethodGet)
	r.HandleFunc("/wallets/{id}/addresses", w.addAddressHandler).Methods(http.MethodPost)
	r.HandleFunc("/wallets/{id}/addresses", w.listAddressesHandler).Methods(http.MethodGet)
	r.Use(w.requestMiddleware)

	return cors(r)
}

// Init sets up and starts the http/https server to service the RESTful API for a wallet service. If sslPort, ssCert
// and sslKey are informed, it will start an https (TLS) server on the specified endpoint. It returns once Stop has
// shut the servers down.
func (w *Wallet) Init(endpoint, port, sslPort, sslCert, sslKey string) string {
	h := w.Router()
	errs := make(chan error, 2) //nolint:gomnd // one per server

	var s, ss *http.Server

	// start http server
	if port != "" {
		s = &http.Server{
			Handler:      h,
			Addr:         endpoint + ":" + port,
			WriteTimeout: timeout * time.Second,
			ReadTimeout:  timeout * time.Second,
		}

		go func() {
			errs <- serve(s.ListenAndServe())
		}()

		w.log.Info("listening to API http requests", zap.String("addr", s.Addr))
	}
	// start https server
	if sslPort != "" && sslCert != "" && sslKey != "" {
		ss = &http.Server{
			Handler:      h,
			Addr:         endpoint + ":" + sslPort,
			WriteTimeout: timeout * time.Second,
			ReadTimeout:  timeout * time.Second,
		}

		go func() {
			errs <- serve(ss.ListenAndServeTLS(sslCert, sslKey))
		}()

		w.log.Info("listening to API https requests", zap.String("addr", ss.Addr))
	}

	w.mu.Lock()
	w.s, w.ss = s, ss
	w.mu.Unlock()

	// wait for servers to be shutdown
	<-w.sc

	var err, errTLS error

	if s != nil {
		err = <-errs
	}

	if ss != nil {
		errTLS = <-errs
	}

	return fmt.Sprintf("shutdown http server:%v, https server:%v", err, errTLS)
}

func serve(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}

// statusRecorder keeps the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// requestMiddleware tags the request with an id, counts it by route and logs it once served.
func (w *Wallet) requestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}

		rw.Header().Set(RequestIDHeader, id)
		r = r.WithContext(context.WithValue(r.Context(), ctxKey{}, id))

		rec := &statusRecorder{ResponseWriter: rw, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cr := mux.CurrentRoute(r); cr != nil {
			if tpl, err := cr.GetPathTemplate(); err == nil {
				route = tpl
			}
		}

		w.m.request(route, r.Method, rec.status)
		w.log.Info("httpreq", zap.String("request_id", id), zap.String("remote", r.RemoteAddr),
			zap.String("method", r.Method), zap.String("uri", r.RequestURI), zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)))
	})
}

// requestID returns the id given to r by requestMiddleware.
func requestID(r *http.Request) string {
	id, _ := r.Context().Value(ctxKey{}).(string)

	return id
}

// cors allows any origin, method and header, and answers preflight requests.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		h := rw.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Expose-Headers", RequestIDHeader)

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")

			if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
				h.Set("Access-Control-Allow-Headers", reqHeaders)
			} else {
				h.Set("Access-Control-Allow-Headers", "*")
			}

			h.Set("Access-Control-Max-Age", "3600")
			rw.WriteHeader(http.StatusNoContent)

			return
		}

		next.ServeHTTP(rw, r)
	})
}
