package service

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/agoranet/agora/src/node"
	"github.com/sirupsen/logrus"
)

// Service ...
type Service struct {
	sync.Mutex

	bindAddress string
	node        *node.Node
	logger      *logrus.Entry
}

// NewService ...
func NewService(bindAddress string, n *node.Node, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		node:        n,
		logger:      logger,
	}

	service.registerHandlers()

	return &service
}

// registerHandlers registers the API handlers with the DefaultServerMux of the
// http package. It is possible that another server in the same process is
// simultaneously using the DefaultServerMux. In which case, the handlers will
// be accessible from both servers. This is usefull when Agora is used
// in-memory and expecpted to use the same endpoint (address:port) as the
// application's API.
func (s *Service) registerHandlers() {
	s.logger.Debug("Registering Agora API handlers")
	http.HandleFunc("/stats", s.makeHandler(s.GetStats))
	http.HandleFunc("/block/", s.makeHandler(s.GetBlock))
	http.HandleFunc("/blocks", s.makeHandler(s.GetBlocks))
	http.HandleFunc("/anchor/", s.makeHandler(s.GetAnchor))
	http.HandleFunc("/failedanchors", s.makeHandler(s.GetFailedAnchors))
	http.HandleFunc("/peers", s.makeHandler(s.GetPeers))
	http.HandleFunc("/securepeers", s.makeHandler(s.GetSecurePeers))
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Serve calls ListenAndServe. This is a blocking call. It is not necessary to
// call Serve when Agora is used in-memory and another server has already been
// started with the DefaultServerMux and the same address:port combination.
// Indeed, Agora API handlers have already been registered when the service was
// instantiated.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving Agora API")

	// Use the DefaultServerMux
	err := http.ListenAndServe(s.bindAddress, nil)
	if err != nil {
		s.logger.Error(err)
	}
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := s.node.GetStats()

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(stats)
}

// GetBlock ...
func (s *Service) GetBlock(w http.ResponseWriter, r *http.Request) {
	param := r.URL.Path[len("/block/"):]

	slot, err := strconv.Atoi(param)

	if err != nil {
		s.logger.WithError(err).Errorf("Parsing slot parameter %s", param)

		http.Error(w, err.Error(), http.StatusInternalServerError)

		return
	}

	block := s.node.GetBlock(slot)

	if block == nil {
		http.Error(w, "block not found", http.StatusNotFound)

		return
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(block)
}

// GetBlocks returns the blocks in the slot range given by the from and to
// query parameters.
func (s *Service) GetBlocks(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()

	from, err := strconv.Atoi(qs.Get("from"))

	if err != nil {
		s.logger.WithError(err).Errorf("Parsing from parameter %s", qs.Get("from"))

		http.Error(w, err.Error(), http.StatusInternalServerError)

		return
	}

	to := from
	if t := qs.Get("to"); t != "" {
		to, err = strconv.Atoi(t)

		if err != nil {
			s.logger.WithError(err).Errorf("Parsing to parameter %s", t)

			http.Error(w, err.Error(), http.StatusInternalServerError)

			return
		}
	}

	blocks := s.node.GetBlocks(from, to)

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(blocks)
}

// GetAnchor ...
func (s *Service) GetAnchor(w http.ResponseWriter, r *http.Request) {
	param := r.URL.Path[len("/anchor/"):]

	slot, err := strconv.Atoi(param)

	if err != nil {
		s.logger.WithError(err).Errorf("Parsing slot parameter %s", param)

		http.Error(w, err.Error(), http.StatusInternalServerError)

		return
	}

	anchor := s.node.GetAnchor(slot)

	if anchor == nil {
		http.Error(w, "anchor not found", http.StatusNotFound)

		return
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(anchor)
}

// GetFailedAnchors returns the anchors awaiting resubmission, up to the limit
// query parameter which defaults to 10.
func (s *Service) GetFailedAnchors(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)

		if err != nil {
			s.logger.WithError(err).Errorf("Parsing limit parameter %s", l)

			http.Error(w, err.Error(), http.StatusInternalServerError)

			return
		}

		limit = parsed
	}

	failed := s.node.GetFailedAnchors(limit)

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(failed)
}

// GetPeers ...
func (s *Service) GetPeers(w http.ResponseWriter, r *http.Request) {
	returnPeerIDs(w, r, s.node.GetPeers())
}

// GetSecurePeers ...
func (s *Service) GetSecurePeers(w http.ResponseWriter, r *http.Request) {
	returnPeerIDs(w, r, s.node.GetSecurePeers())
}

func returnPeerIDs(w http.ResponseWriter, r *http.Request, ids []string) {
	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(ids)
}
