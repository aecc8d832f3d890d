package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/hlog"

	"github.com/snarg/transcribe-etl/internal/metrics"
	"github.com/snarg/transcribe-etl/internal/transcript"
)

// ParseTranscript handles POST /api/v1/transcripts/parse. The body is a raw
// export document; the response is its groups. Block and utterance counts
// are returned in headers.
func ParseTranscript(w http.ResponseWriter, r *http.Request) {
	res, err := transcript.ParseReader(r.Body)
	if err != nil {
		var fe *transcript.FormatError
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &fe):
			metrics.DocumentsParsedTotal.WithLabelValues("format_error").Inc()
			WriteErrorDetail(w, http.StatusUnprocessableEntity, "malformed export", err.Error())
		case errors.As(err, &tooLarge):
			WriteErrorDetail(w, http.StatusRequestEntityTooLarge, "export too large",
				"limit is "+strconv.FormatInt(tooLarge.Limit, 10)+" bytes")
		default:
			metrics.DocumentsParsedTotal.WithLabelValues("io_error").Inc()
			hlog.FromRequest(r).Warn().Err(err).Msg("failed to read export body")
			WriteError(w, http.StatusBadRequest, "failed to read request body")
		}
		return
	}

	metrics.DocumentsParsedTotal.WithLabelValues("ok").Inc()
	metrics.BlocksExtractedTotal.Add(float64(res.Blocks))
	metrics.UtterancesEmittedTotal.Add(float64(res.Utterances))
	if res.Dangling {
		metrics.DanglingContinuationsTotal.Inc()
	}

	groups := res.Groups
	if groups == nil {
		groups = []transcript.Group{}
	}
	w.Header().Set("X-Transcript-Blocks", strconv.Itoa(res.Blocks))
	w.Header().Set("X-Transcript-Utterances", strconv.Itoa(res.Utterances))
	w.Header().Set("X-Transcript-Dangling", strconv.FormatBool(res.Dangling))
	WriteJSON(w, http.StatusOK, groups)
}
