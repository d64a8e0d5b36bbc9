package llm

import (
	"errors"
	"net/http"

	"github.com/Abraxas-365/finai/pkg/errx"
)

var ErrRegistry = errx.NewRegistry("LLM")

var (
	ErrModelUnavailable = ErrRegistry.Register("MODEL_UNAVAILABLE", errx.TypeExternal, http.StatusServiceUnavailable, "Language model unavailable")
)

var errEmptyReply = errors.New("model returned an empty reply")
