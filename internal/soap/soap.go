package soap

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"overcast-sonos/internal/service"
)

const maxEnvelopeBytes = 1 << 20

// Service is the subset of the music service the SOAP actions call into.
type Service interface {
	ListCollection(ctx context.Context, id string, index, count int) (service.Listing, error)
	FetchItemDetail(ctx context.Context, itemID string) (service.MediaMetadata, bool, error)
	FetchPlaybackLocator(ctx context.Context, itemID string) (service.Locator, bool, error)
	PollForUpdates() service.LastUpdate
	ReportProgress(ctx context.Context, itemID string, offsetMillis int64) (time.Duration, error)
}

// Options configures the handler. Metrics may be nil, in which case
// /metrics is not served.
type Options struct {
	Service Service
	Metrics http.Handler
	Logger  *log.Logger
	// Debug receives per-action traces. Nil discards them.
	Debug *log.Logger
}

type action func(ctx context.Context, dec *xml.Decoder, start xml.StartElement) (any, error)

type soapHandler struct {
	svc     Service
	logger  *log.Logger
	debug   *log.Logger
	actions map[string]action
}

// clientError marks failures caused by the request rather than the service.
type clientError struct {
	err error
}

func (e *clientError) Error() string { return e.err.Error() }
func (e *clientError) Unwrap() error { return e.err }

// New creates the HTTP handler that serves the music service endpoint, the
// presentation map and the operational routes.
func New(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	debug := opts.Debug
	if debug == nil {
		debug = log.New(io.Discard, "", 0)
	}

	h := &soapHandler{svc: opts.Service, logger: logger, debug: debug}
	h.actions = map[string]action{
		"getSessionId":      h.getSessionID,
		"getMetadata":       h.getMetadata,
		"getMediaMetadata":  h.getMediaMetadata,
		"getMediaURI":       h.getMediaURI,
		"getLastUpdate":     h.getLastUpdate,
		"reportPlaySeconds": h.reportPlaySeconds,
		"reportPlayStatus":  h.reportPlayStatus,
		"setPlayedSeconds":  h.setPlayedSeconds,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", h.handleSOAP)
	mux.HandleFunc("/presentation_map", h.handlePresentationMap)
	mux.HandleFunc("/health", h.handleHealth)
	if opts.Metrics != nil {
		mux.Handle("/metrics", opts.Metrics)
	}

	return logRequests(mux, logger)
}

func (h *soapHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (h *soapHandler) handlePresentationMap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	if _, err := io.WriteString(w, presentationMap); err != nil {
		h.logger.Printf("failed to write presentation map: %v", err)
	}
}

func (h *soapHandler) handleSOAP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	dec, start, err := readAction(http.MaxBytesReader(w, r.Body, maxEnvelopeBytes))
	if err != nil {
		h.writeFault(w, &clientError{err})
		return
	}

	name := start.Name.Local
	act, ok := h.actions[name]
	if !ok {
		h.writeFault(w, &clientError{fmt.Errorf("unknown action %q", name)})
		return
	}

	response, err := act(r.Context(), dec, start)
	if err != nil {
		h.logger.Printf("%s failed: %v", name, err)
		h.writeFault(w, err)
		return
	}
	h.debug.Printf("at=%s response=%+v", name, response)
	h.write(w, http.StatusOK, response)
}

// readAction advances dec to the first element inside the SOAP body, skipping
// any header content.
func readAction(r io.Reader) (*xml.Decoder, xml.StartElement, error) {
	dec := xml.NewDecoder(r)
	sawEnvelope := false
	inBody := false
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, xml.StartElement{}, errors.New("envelope has no body action")
			}
			return nil, xml.StartElement{}, fmt.Errorf("read envelope: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch {
		case !sawEnvelope:
			if start.Name.Local != "Envelope" {
				return nil, xml.StartElement{}, fmt.Errorf("unexpected root element %q", start.Name.Local)
			}
			sawEnvelope = true
		case inBody:
			return dec, start, nil
		case start.Name.Local == "Body":
			inBody = true
		default:
			if err := dec.Skip(); err != nil {
				return nil, xml.StartElement{}, fmt.Errorf("read envelope: %w", err)
			}
		}
	}
}

func decodeArgs(dec *xml.Decoder, start xml.StartElement, v any) error {
	if err := dec.DecodeElement(v, &start); err != nil {
		return &clientError{fmt.Errorf("decode %s: %w", start.Name.Local, err)}
	}
	return nil
}

func (h *soapHandler) getSessionID(_ context.Context, dec *xml.Decoder, start xml.StartElement) (any, error) {
	var req getSessionIDRequest
	if err := decodeArgs(dec, start, &req); err != nil {
		return nil, err
	}
	h.debug.Printf("at=getSessionId username=%s", req.Username)
	return getSessionIDResponse{Xmlns: sonosNS, Result: req.Username}, nil
}

func (h *soapHandler) getMetadata(ctx context.Context, dec *xml.Decoder, start xml.StartElement) (any, error) {
	var req getMetadataRequest
	if err := decodeArgs(dec, start, &req); err != nil {
		return nil, err
	}
	h.debug.Printf("at=getMetadata id=%s index=%d count=%d recursive=%t", req.ID, req.Index, req.Count, req.Recursive)

	listing, err := h.svc.ListCollection(ctx, req.ID, req.Index, req.Count)
	if err != nil {
		return nil, err
	}
	return getMetadataResponse{Xmlns: sonosNS, Result: listingXML(listing)}, nil
}

func (h *soapHandler) getMediaMetadata(ctx context.Context, dec *xml.Decoder, start xml.StartElement) (any, error) {
	var req itemRequest
	if err := decodeArgs(dec, start, &req); err != nil {
		return nil, err
	}
	h.debug.Printf("at=getMediaMetadata id=%s", req.ID)

	metadata, ok, err := h.svc.FetchItemDetail(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	response := getMediaMetadataResponse{Xmlns: sonosNS}
	if ok {
		m := metadataXML(metadata)
		response.Result.Metadata = &m
	}
	return response, nil
}

func (h *soapHandler) getMediaURI(ctx context.Context, dec *xml.Decoder, start xml.StartElement) (any, error) {
	var req itemRequest
	if err := decodeArgs(dec, start, &req); err != nil {
		return nil, err
	}
	h.debug.Printf("at=getMediaURI id=%s", req.ID)

	locator, ok, err := h.svc.FetchPlaybackLocator(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	response := getMediaURIResponse{Xmlns: sonosNS}
	if ok {
		response.Result = locator.URI
		response.Position = &positionInformation{ID: locator.ItemID, OffsetMillis: locator.OffsetMillis}
	}
	return response, nil
}

func (h *soapHandler) getLastUpdate(_ context.Context, dec *xml.Decoder, start xml.StartElement) (any, error) {
	if err := dec.Skip(); err != nil {
		return nil, &clientError{fmt.Errorf("decode %s: %w", start.Name.Local, err)}
	}
	update := h.svc.PollForUpdates()
	return getLastUpdateResponse{
		Xmlns: sonosNS,
		Result: lastUpdateResult{
			Catalog:      update.Catalog,
			Favorites:    update.Favorites,
			PollInterval: int(update.PollInterval / time.Second),
		},
	}, nil
}

func (h *soapHandler) reportPlaySeconds(ctx context.Context, dec *xml.Decoder, start xml.StartElement) (any, error) {
	interval, err := h.progress(ctx, dec, start)
	if err != nil {
		return nil, err
	}
	return reportPlaySecondsResponse{
		Xmlns:  sonosNS,
		Result: reportPlaySecondsResult{Interval: int(interval / time.Second)},
	}, nil
}

func (h *soapHandler) reportPlayStatus(ctx context.Context, dec *xml.Decoder, start xml.StartElement) (any, error) {
	if _, err := h.progress(ctx, dec, start); err != nil {
		return nil, err
	}
	return emptyResponse{XMLName: xml.Name{Local: "reportPlayStatusResponse"}, Xmlns: sonosNS}, nil
}

func (h *soapHandler) setPlayedSeconds(ctx context.Context, dec *xml.Decoder, start xml.StartElement) (any, error) {
	if _, err := h.progress(ctx, dec, start); err != nil {
		return nil, err
	}
	return emptyResponse{XMLName: xml.Name{Local: "setPlayedSecondsResponse"}, Xmlns: sonosNS}, nil
}

// progress handles the three progress actions, which all carry the item id
// and the playback position in milliseconds.
func (h *soapHandler) progress(ctx context.Context, dec *xml.Decoder, start xml.StartElement) (time.Duration, error) {
	var req progressRequest
	if err := decodeArgs(dec, start, &req); err != nil {
		return 0, err
	}
	h.debug.Printf("at=%s id=%s seconds=%d status=%s offsetMillis=%d contextId=%s",
		start.Name.Local, req.ID, req.Seconds, req.Status, req.OffsetMillis, req.ContextID)
	return h.svc.ReportProgress(ctx, req.ID, req.OffsetMillis)
}

func (h *soapHandler) writeFault(w http.ResponseWriter, err error) {
	code := "soap:Server"
	var ce *clientError
	if errors.As(err, &ce) {
		code = "soap:Client"
	}
	h.write(w, http.StatusInternalServerError, fault{Code: code, String: err.Error()})
}

func (h *soapHandler) write(w http.ResponseWriter, status int, content any) {
	output, err := xml.Marshal(envelope{SoapNS: envelopeNS, Body: envelopeBody{Content: content}})
	if err != nil {
		h.logger.Printf("failed to encode soap response: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(append([]byte(xml.Header), output...)); err != nil {
		h.logger.Printf("failed to write soap response: %v", err)
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

func logRequests(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		duration := time.Since(start)
		logger.Printf("%s %s -> %d (%dB) in %s", r.Method, r.URL.Path, sw.status, sw.size, duration)
	})
}
