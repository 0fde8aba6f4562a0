package api

import (
	"context"
	"errors"

	"github.com/labstack/echo/v4"

	"StratLab/internal/domain/models"
	domsvc "StratLab/internal/domain/service"
	"StratLab/internal/services/diagnostics"
	"StratLab/internal/usecase"
	xhttp "StratLab/pkg/http"
	xlogger "StratLab/pkg/logger"
)

// BacktestsEchoHandler serves backtest runs and their diagnostics.
type BacktestsEchoHandler struct {
	logger *xlogger.Logger
	runner *usecase.BacktestRunner
	batch  *usecase.BatchRunner
	async  *usecase.AsyncSubmitter
	diag   *usecase.DiagnosticsUseCase
	parser domsvc.StrategyParser
}

func NewBacktestsEchoHandler(
	logger *xlogger.Logger,
	runner *usecase.BacktestRunner,
	batch *usecase.BatchRunner,
	async *usecase.AsyncSubmitter,
	diag *usecase.DiagnosticsUseCase,
	parser domsvc.StrategyParser,
) *BacktestsEchoHandler {
	if logger == nil {
		logger = xlogger.NewNop()
	}
	return &BacktestsEchoHandler{logger: logger, runner: runner, batch: batch, async: async, diag: diag, parser: parser}
}

func (h *BacktestsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/backtests")
	g.POST("", h.Create)
	g.POST("/batch", h.Batch)
	g.POST("/from-text", h.FromText)
	g.GET("/:id", h.Get)
	g.GET("/:id/heatmap", h.Heatmap)
	g.GET("/:id/trades/:index/similar", h.Similar)
	g.GET("/:id/trades/:index/facts", h.Facts)
}

// Create runs a backtest, or queues it when the request asks for async.
func (h *BacktestsEchoHandler) Create(c echo.Context) error {
	req := &models.BacktestRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()
	if req.Async {
		accepted, err := h.async.Submit(ctx, *req)
		if err != nil {
			return h.errorResponse(c, "submit backtest", err)
		}
		return xhttp.AcceptedResponse(c, accepted)
	}
	res, err := h.runner.Run(ctx, *req)
	if err != nil {
		return h.errorResponse(c, "run backtest", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *BacktestsEchoHandler) Batch(c echo.Context) error {
	req := &models.BatchRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	items := h.batch.Run(c.Request().Context(), req.Runs)
	return xhttp.ListResponse(c, items, int64(len(items)))
}

// FromTextResponse pairs the parsed strategy with the run it produced.
type FromTextResponse struct {
	Strategy models.Strategy        `json:"strategy"`
	Result   *models.StrategyResult `json:"result"`
}

func (h *BacktestsEchoHandler) FromText(c echo.Context) error {
	req := &models.FromTextRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()
	st, err := h.parser.Parse(ctx, req.Text, req.Symbol)
	if err != nil {
		return h.errorResponse(c, "parse strategy", err)
	}
	res, err := h.runner.Run(ctx, models.BacktestRequest{
		Strategy:   st,
		Start:      req.Start,
		End:        req.End,
		FillPolicy: req.FillPolicy,
	})
	if err != nil {
		return h.errorResponse(c, "run parsed strategy", err)
	}
	return xhttp.SuccessResponse(c, &FromTextResponse{Strategy: st, Result: res})
}

func (h *BacktestsEchoHandler) Get(c echo.Context) error {
	req := &models.RunRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.diag.Result(c.Request().Context(), req.ID)
	if err != nil {
		return h.errorResponse(c, "get backtest", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=300")
	return xhttp.SuccessResponse(c, res)
}

func (h *BacktestsEchoHandler) Similar(c echo.Context) error {
	req := &models.SimilarRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.diag.Similar(c.Request().Context(), req.ID, req.Index, req.Top)
	if err != nil {
		return h.errorResponse(c, "similar trades", err)
	}
	return xhttp.ListResponse(c, res, int64(len(res)))
}

func (h *BacktestsEchoHandler) Heatmap(c echo.Context) error {
	req := &models.HeatmapRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.diag.Heatmap(c.Request().Context(), req.ID, models.HeatmapDimension(req.Dimension))
	if err != nil {
		return h.errorResponse(c, "heatmap", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *BacktestsEchoHandler) Facts(c echo.Context) error {
	req := &models.FactsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.diag.Facts(c.Request().Context(), req.ID, req.Index, req.Narrative)
	if err != nil {
		return h.errorResponse(c, "trade facts", err)
	}
	return xhttp.SuccessResponse(c, res)
}

// errorResponse maps usecase errors onto HTTP statuses. Only unexpected
// failures are logged at error level.
func (h *BacktestsEchoHandler) errorResponse(c echo.Context, op string, err error) error {
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		return xhttp.BadRequestResponse(c, fieldErrors(ve))
	}
	var appErr *xhttp.AppError
	switch {
	case errors.Is(err, models.ErrRunNotFound):
		appErr = xhttp.NotFoundError(models.ErrRunNotFound.Error())
	case errors.Is(err, models.ErrTradeNotFound):
		appErr = xhttp.NotFoundError(models.ErrTradeNotFound.Error())
	case errors.Is(err, diagnostics.ErrNoConditionData), errors.Is(err, diagnostics.ErrUnknownDimension):
		appErr = xhttp.BadRequestError(err.Error())
	case errors.Is(err, models.ErrServiceUnavailable):
		appErr = xhttp.UnavailableError(err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		appErr = xhttp.UnavailableError("backtest timed out")
	default:
		h.logger.Error(op+" failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError(op+" failed").WithError(err))
	}
	h.logger.Warn(op+" rejected", xlogger.Int("status", appErr.Status), xlogger.Error(err))
	return xhttp.AppErrorResponse(c, appErr.WithError(err))
}

func fieldErrors(ve *models.ValidationError) []xhttp.ValidationError {
	out := make([]xhttp.ValidationError, 0, len(ve.Fields))
	for _, f := range ve.Fields {
		out = append(out, xhttp.ValidationError{Code: "ERR_INVALID_STRATEGY", Field: f.Field, Message: f.Message})
	}
	return out
}

var _ xhttp.Handler = (*BacktestsEchoHandler)(nil)
