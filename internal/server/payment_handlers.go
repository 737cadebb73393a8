package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/interledger/publisher-tools/internal/interaction"
	"github.com/interledger/publisher-tools/internal/logging"
	"github.com/interledger/publisher-tools/internal/openpayments"
	"github.com/interledger/publisher-tools/internal/payment"
	"github.com/interledger/publisher-tools/internal/wallet"
)

// -----------------------------------------------------------------------------
// Quote
// -----------------------------------------------------------------------------

// CreateQuoteRequest is the body of POST /api/payment/quote.
type CreateQuoteRequest struct {
	SenderWalletAddress   string `json:"senderWalletAddress" binding:"required"`
	ReceiverWalletAddress string `json:"receiverWalletAddress" binding:"required"`
	Amount                string `json:"amount" binding:"required"`
	Note                  string `json:"note"`
}

func (s *Server) createQuoteHandler(c *gin.Context) {
	ctx := c.Request.Context()

	var req CreateQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	sender, ok := s.resolveWallet(c, req.SenderWalletAddress, "sender")
	if !ok {
		return
	}
	receiver, ok := s.resolveWallet(c, req.ReceiverWalletAddress, "receiver")
	if !ok {
		return
	}

	quote, err := s.quotes.CreateQuote(ctx, sender, receiver, req.Amount, req.Note)
	if err != nil {
		s.paymentError(c, err)
		return
	}

	c.JSON(http.StatusOK, quote)
}

// -----------------------------------------------------------------------------
// Grant
// -----------------------------------------------------------------------------

// RequestGrantRequest is the body of POST /api/payment/grant.
type RequestGrantRequest struct {
	WalletAddress string              `json:"walletAddress" binding:"required"`
	DebitAmount   openpayments.Amount `json:"debitAmount" binding:"required"`
	ReceiveAmount openpayments.Amount `json:"receiveAmount" binding:"required"`
}

func (s *Server) requestGrantHandler(c *gin.Context) {
	ctx := c.Request.Context()

	var req RequestGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	sender, ok := s.resolveWallet(c, req.WalletAddress, "sender")
	if !ok {
		return
	}

	pending, err := s.grants.RequestInteractiveGrant(ctx, sender, req.DebitAmount, req.ReceiveAmount)
	if err != nil {
		s.paymentError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"paymentId":   pending.PaymentID,
		"nonce":       pending.Nonce,
		"grant":       pending.Grant,
		"redirectUrl": pending.Grant.Interact.Redirect,
	})
}

// -----------------------------------------------------------------------------
// Finalize
// -----------------------------------------------------------------------------

// FinalizeRequest is the body of POST /api/payment/finalize. The widget
// owns the pending grant and quote for the attempt and sends them back.
// When InteractRef/Result are empty the request suspends until the
// authorization server redirects the user to the callback endpoint.
type FinalizeRequest struct {
	WalletAddress string                       `json:"walletAddress" binding:"required"`
	PendingGrant  payment.PendingOutgoingGrant `json:"pendingGrant" binding:"required"`
	Quote         payment.Quote                `json:"quote" binding:"required"`
	InteractRef   string                       `json:"interactRef"`
	Result        string                       `json:"result"`
	Hash          string                       `json:"hash"`
	Note          string                       `json:"note"`
}

func (s *Server) finalizeHandler(c *gin.Context) {
	ctx := c.Request.Context()
	logger := logging.L(ctx)

	var req FinalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	if req.PendingGrant.PaymentID == "" || req.PendingGrant.Grant.Continue.URI == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "pendingGrant is incomplete",
		})
		return
	}
	if req.Quote.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "quote is incomplete",
		})
		return
	}

	sender, ok := s.resolveWallet(c, req.WalletAddress, "sender")
	if !ok {
		return
	}

	// One coordinator per attempt; it consumes the grant's continuation
	// at most once
	co := interaction.NewCoordinator(s.grants, s.relay, logger)

	var finalized *openpayments.FinalizedGrant
	var err error
	if req.InteractRef != "" || req.Result != "" {
		finalized, err = co.Settle(ctx, &req.PendingGrant, interaction.FromCallback(req.InteractRef, req.Result, req.Hash))
	} else {
		finalized, err = co.Await(ctx, &req.PendingGrant)
	}
	if err != nil {
		s.publishPaymentFailed(req.PendingGrant.PaymentID, co.State())
		s.paymentError(c, err)
		return
	}
	if co.State() == interaction.StateRejected {
		// The user said no; a normal terminal outcome
		s.publishPaymentFailed(req.PendingGrant.PaymentID, co.State())
		c.JSON(http.StatusOK, gin.H{"status": "rejected"})
		return
	}

	op, err := s.finalizer.Finalize(ctx, finalized, sender, &req.Quote, req.Note)
	if err != nil {
		s.publishPaymentFailed(req.PendingGrant.PaymentID, co.State())
		s.paymentError(c, err)
		return
	}

	verification := s.finalizer.Verify(ctx, op.ID, finalized.AccessToken,
		req.Quote.IncomingPaymentGrantToken, req.Quote.Receiver)

	s.hub.Publish(&interaction.Event{
		Type:      interaction.EventPaymentCompleted,
		PaymentID: req.PendingGrant.PaymentID,
		Data:      gin.H{"status": string(verification.Status)},
	})

	c.JSON(http.StatusOK, gin.H{
		"status":          string(verification.Status),
		"outgoingPayment": op,
		"verification":    verification,
	})
}

func (s *Server) publishPaymentFailed(paymentID string, state interaction.Status) {
	s.hub.Publish(&interaction.Event{
		Type:      interaction.EventPaymentFailed,
		PaymentID: paymentID,
		Data:      gin.H{"state": string(state)},
	})
}

// -----------------------------------------------------------------------------
// Interaction callback + websocket
// -----------------------------------------------------------------------------

// interactionCallbackHandler is the redirect target the authorization
// server sends the user to after they approve or decline the grant. It
// relays the result to whoever is waiting on the payment id and serves
// a small page that hands the result to the widget and closes itself.
func (s *Server) interactionCallbackHandler(c *gin.Context) {
	paymentID := c.Param("paymentId")
	res := interaction.FromCallback(
		c.Query("interact_ref"),
		c.Query("result"),
		c.Query("hash"),
	)

	delivered := s.relay.Deliver(paymentID, res)

	s.hub.Publish(&interaction.Event{
		Type:      interaction.EventInteractionResult,
		PaymentID: paymentID,
		Timestamp: time.Now().UTC(),
		Data: gin.H{
			"outcome":     string(res.Outcome),
			"interactRef": res.InteractRef,
			"hash":        res.Hash,
		},
	})

	logging.L(c.Request.Context()).Info("interaction callback received",
		"payment_id", paymentID,
		"outcome", string(res.Outcome),
		"delivered", delivered,
	)

	c.Data(http.StatusOK, "text/html; charset=utf-8", callbackPage(res))
}

func (s *Server) paymentWebSocketHandler(c *gin.Context) {
	s.hub.HandleWebSocket(c.Writer, c.Request, c.Param("paymentId"))
}

// -----------------------------------------------------------------------------
// Error mapping
// -----------------------------------------------------------------------------

// resolveWallet resolves a wallet address input and writes the error
// response on failure.
func (s *Server) resolveWallet(c *gin.Context, input, role string) (*openpayments.WalletAddress, bool) {
	wa, err := s.resolver.Resolve(c.Request.Context(), input)
	if err != nil {
		switch {
		case errors.Is(err, wallet.ErrWalletAddressNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "wallet_address_not_found",
				"message": "The " + role + " wallet address could not be found",
			})
		case errors.Is(err, wallet.ErrInvalidWalletAddress):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_wallet_address",
				"message": "The " + role + " wallet address is not valid",
			})
		default:
			logging.L(c.Request.Context()).Error("wallet resolution failed", "role", role, "error", err)
			c.JSON(http.StatusBadGateway, gin.H{
				"error":   "wallet_resolution_failed",
				"message": "The " + role + " wallet address could not be resolved",
			})
		}
		return nil, false
	}
	return wa, true
}

// paymentError converts flow errors into user-facing JSON. Upstream
// response bodies, tokens, and keys never reach the client; the
// request id links the response to the server-side log line.
func (s *Server) paymentError(c *gin.Context, err error) {
	logging.L(c.Request.Context()).Error("payment flow failed", "error", err)

	var grantErr *payment.GrantRequestError
	var quoteErr *payment.QuoteError

	switch {
	case errors.Is(err, payment.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_amount",
			"message": "Amount must be a positive decimal number",
		})
	case errors.Is(err, interaction.ErrNoInteractRef):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "missing_interact_ref",
			"message": "The authorization callback carried no interaction reference",
		})
	case errors.Is(err, interaction.ErrCancelled):
		c.JSON(http.StatusRequestTimeout, gin.H{
			"error":   "interaction_cancelled",
			"message": "The authorization step was cancelled",
		})
	case errors.Is(err, payment.ErrGrantNotAccepted):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "grant_not_accepted",
			"message": "The wallet did not accept the payment authorization",
		})
	case errors.Is(err, payment.ErrUnexpectedGrantType):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "unexpected_grant_type",
			"message": "The authorization server responded with an unexpected grant type",
		})
	case errors.As(err, &quoteErr):
		msg := "Quote creation failed"
		if quoteErr.ReceiverName != "" {
			msg = "Quote creation for " + quoteErr.ReceiverName + " failed"
		}
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "quote_failed",
			"message": msg,
		})
	case errors.Is(err, payment.ErrIncomingPaymentCreation):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "incoming_payment_failed",
			"message": "The receiver's wallet could not accept the payment",
		})
	case errors.Is(err, payment.ErrOutgoingPaymentCreation):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "outgoing_payment_failed",
			"message": "The payment could not be created; the quote may have expired",
		})
	case errors.As(err, &grantErr):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "grant_request_failed",
			"message": "Authorization for " + grantErr.Scope + " could not be obtained",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}
}
