// This is a http type of reporter.
// It fetches data from the health tracker and statedb
// and publishes on the http routes.

package reporter

import (
	"context"
	"errors"
	"math/big"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/TEENet-io/watchtower-go/agreement"
	"github.com/TEENet-io/watchtower-go/statedb"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	logger "github.com/sirupsen/logrus"
)

const (
	ROUTE_HEALTHZ  = "/healthz"
	ROUTE_READYZ   = "/readyz"
	ROUTE_STATUS   = "/status"
	ROUTE_APPROVAL = "/approval"
	ROUTE_METRICS  = "/metrics"
)

// StateReader is the part of the store the reporter reads.
type StateReader interface {
	Stats() (*statedb.Stats, error)
	GetApproval(hash ethcommon.Hash) (*statedb.ApprovalRecord, bool, error)
}

type QueueReader interface {
	Pending() int
}

type HttpReporter struct {
	serverIP   string // listen ip
	serverPort string // listen port

	// upstream data sources
	health *Health
	state  StateReader
	queue  QueueReader // optional
}

func NewHttpReporter(serverIP string, serverPort string, health *Health, state StateReader, queue QueueReader) *HttpReporter {
	return &HttpReporter{
		serverIP:   serverIP,
		serverPort: serverPort,
		health:     health,
		state:      state,
		queue:      queue,
	}
}

// Hook up routes & handlers
func (h *HttpReporter) SetupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET(ROUTE_HEALTHZ, h.Healthz)
	router.GET(ROUTE_READYZ, h.Readyz)
	router.GET(ROUTE_STATUS, h.Status)
	router.GET(ROUTE_APPROVAL, h.Approval)
	router.GET(ROUTE_METRICS, gin.WrapH(promhttp.Handler()))

	return router
}

// Loop serves the routes until ctx is done.
func (h *HttpReporter) Loop(ctx context.Context) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort(h.serverIP, h.serverPort),
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("address", srv.Addr).Info("http reporter listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		logger.Errorf("http reporter stopped: err=%v", err)
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("failed to shut down http reporter: err=%v", err)
		}
		return ctx.Err()
	}
}

func (h *HttpReporter) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": h.health.Uptime().Round(time.Second).String(),
	})
}

func (h *HttpReporter) Readyz(c *gin.Context) {
	ready, reasons := h.health.Ready()
	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false, "reasons": reasons})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": true})
}

type WatcherView struct {
	Stream     string    `json:"stream"`
	Chain      string    `json:"chain"`
	ChainKey   string    `json:"chain_key"`
	LastHeight uint64    `json:"last_height"`
	Head       uint64    `json:"head"`
	LastError  string    `json:"last_error,omitempty"`
	LastTick   time.Time `json:"last_tick"`
	Ticks      uint64    `json:"ticks"`
}

type StatusView struct {
	Uptime   string        `json:"uptime"`
	Watchers []WatcherView `json:"watchers"`

	PendingDeposits    int `json:"pending_deposits"`
	VerifiedApprovals  int `json:"verified_approvals"`
	InvalidApprovals   int `json:"invalid_approvals"`
	CancelledApprovals int `json:"cancelled_approvals"`
	RetryQueue         int `json:"retry_queue"`

	Deposits    map[statedb.DepositStatus]int    `json:"deposits"`
	Approvals   map[agreement.ApprovalState]int  `json:"approvals"`
	Submissions map[statedb.SubmissionStatus]int `json:"submissions"`

	FailedTasks map[string]string `json:"failed_tasks,omitempty"`
}

func (h *HttpReporter) Status(c *gin.Context) {
	stats, err := h.state.Stats()
	if err != nil {
		logger.Errorf("failed to read stats for status route: err=%v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	view := StatusView{
		Uptime:             h.health.Uptime().Round(time.Second).String(),
		PendingDeposits:    stats.Deposits[statedb.DepositObserved] + stats.Deposits[statedb.DepositRetrying],
		VerifiedApprovals:  stats.Verdicts[agreement.VerdictValid],
		InvalidApprovals:   stats.Verdicts[agreement.VerdictInvalid],
		CancelledApprovals: stats.Approvals[agreement.ApprovalCancelled],
		Deposits:           stats.Deposits,
		Approvals:          stats.Approvals,
		Submissions:        stats.Submissions,
		FailedTasks:        h.health.FailedTasks(),
	}
	if h.queue != nil {
		view.RetryQueue = h.queue.Pending()
	}
	for _, st := range h.health.Watchers() {
		view.Watchers = append(view.Watchers, WatcherView{
			Stream:     st.Stream,
			Chain:      st.Chain,
			ChainKey:   st.ChainKey.Hex(),
			LastHeight: st.LastHeight,
			Head:       st.Head,
			LastError:  st.LastError,
			LastTick:   st.LastTick,
			Ticks:      st.Ticks,
		})
	}
	c.JSON(http.StatusOK, view)
}

type ApprovalView struct {
	WithdrawHash     string `json:"withdraw_hash"`
	SrcChainKey      string `json:"src_chain_key"`
	DestChainKey     string `json:"dest_chain_key"`
	Token            string `json:"token"`
	Recipient        string `json:"recipient"`
	DestAccount      string `json:"dest_account"`
	Amount           string `json:"amount"`
	Nonce            string `json:"nonce"`
	Fee              string `json:"fee"`
	FeeRecipient     string `json:"fee_recipient"`
	ApprovedAt       uint64 `json:"approved_at"`
	DeductFromAmount bool   `json:"deduct_from_amount"`

	State     agreement.ApprovalState `json:"state"`
	Verdict   agreement.Verdict       `json:"verdict"`
	Reason    string                  `json:"reason,omitempty"`
	Reenabled bool                    `json:"reenabled"`
	Height    uint64                  `json:"height"`
	TxHash    string                  `json:"tx_hash"`
	UpdatedAt int64                   `json:"updated_at"`
}

func intString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func approvalView(rec *statedb.ApprovalRecord) *ApprovalView {
	a := &rec.Approval
	return &ApprovalView{
		WithdrawHash:     a.WithdrawHash.Hex(),
		SrcChainKey:      a.SrcChainKey.Hex(),
		DestChainKey:     a.DestChainKey.Hex(),
		Token:            a.Token.Hex(),
		Recipient:        a.Recipient.Hex(),
		DestAccount:      a.DestAccount.Hex(),
		Amount:           intString(a.Amount),
		Nonce:            intString(a.Nonce),
		Fee:              intString(a.Fee),
		FeeRecipient:     a.FeeRecipient.Hex(),
		ApprovedAt:       a.ApprovedAt,
		DeductFromAmount: a.DeductFromAmount,
		State:            rec.State,
		Verdict:          rec.Verdict,
		Reason:           rec.Reason,
		Reenabled:        rec.Reenabled,
		Height:           rec.Height,
		TxHash:           rec.TxHash,
		UpdatedAt:        rec.UpdatedAt,
	}
}

// Fetch one approval by withdraw hash.
func (h *HttpReporter) Approval(c *gin.Context) {
	hash := c.Query("withdraw_hash")
	if hash == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "withdraw_hash must be provided"})
		return
	}
	if !strings.HasPrefix(hash, "0x") {
		hash = "0x" + hash
	}
	b, err := hexutil.Decode(hash)
	if err != nil || len(b) != ethcommon.HashLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "withdraw_hash must be 32 bytes of hex"})
		return
	}

	rec, ok, err := h.state.GetApproval(ethcommon.BytesToHash(b))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No approval found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": approvalView(rec)})
}
