package probe

import "net/http"

// Kind is the terminal classification of one probe.
type Kind int

// Probe outcome kinds.
const (
	KindRejected Kind = iota
	KindFound
	KindRateLimited
	KindTransientError
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindFound:
		return "found"
	case KindRejected:
		return "rejected"
	case KindRateLimited:
		return "rate_limited"
	case KindTransientError:
		return "transient_error"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Outcome is the result of probing one candidate.
type Outcome struct {
	Key        Key
	URL        string
	Kind       Kind
	StatusCode int
	Err        error
	// Attempts counts transport round trips issued for the candidate.
	Attempts int
	// Recorded reports whether this outcome produced the discovery record
	// for its outer key.
	Recorded bool
}

// Found reports whether the outcome confirmed a live resource.
func (o Outcome) Found() bool {
	return o.Kind == KindFound
}

// Classify maps one transport round trip for requested onto an Outcome.
// Cancellation is not considered here; callers check it around the request.
func Classify(requested string, resp Response, err error) Outcome {
	out := Outcome{URL: requested, StatusCode: resp.StatusCode}
	switch {
	case err != nil:
		out.Kind = KindTransientError
		out.Err = err
		out.StatusCode = 0
	case resp.StatusCode == http.StatusTooManyRequests:
		out.Kind = KindRateLimited
	case resp.StatusCode == http.StatusOK && resp.FinalURL == requested:
		out.Kind = KindFound
	default:
		// Redirect targets, other 2xx/3xx and every >= 400 are not-found.
		out.Kind = KindRejected
	}
	return out
}
