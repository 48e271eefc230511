package pkg

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/arrasopromo/nextads/pkg/common"
)

// WooviClient fala com a API Woovi/OpenPix. Cada chamada escolhe a base
// URL e o App ID pelo ambiente da transação, e passa pelo circuit
// breaker daquele ambiente.
type WooviClient struct {
	cfg        *common.Config
	breakers   *BreakerStore
	httpClient *http.Client
}

func NewWooviClient(cfg *common.Config, breakers *BreakerStore) *WooviClient {
	return &WooviClient{
		cfg:      cfg,
		breakers: breakers,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     120 * time.Second,
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
			},
		},
	}
}

// CreateCharge cria a cobrança PIX no provedor. Nenhum estado local é
// gravado aqui; o chamador registra a pendente só depois do ack.
func (c *WooviClient) CreateCharge(
	ctx context.Context,
	env common.Environment,
	payload common.WooviChargePayload,
) (*common.ChargeCreated, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, common.WrapError(common.ErrUnknown, "Erro desconhecido ao criar cobrança PIX", err)
	}

	url := fmt.Sprintf("%s/api/v1/charge", c.cfg.WooviURL(env))
	respBody, err := c.do(ctx, env, http.MethodPost, url, body, common.CreateChargeTimeout)
	if err != nil {
		return nil, err
	}

	var created struct {
		Charge common.Charge `json:"charge"`
	}
	if err := json.Unmarshal(respBody, &created); err != nil {
		return nil, common.WrapError(common.ErrUnknown, "Resposta inesperada da API Woovi", err)
	}

	return &common.ChargeCreated{
		CorrelationID: payload.CorrelationID,
		Charge:        created.Charge,
	}, nil
}

// GetCharge consulta o status de uma cobrança existente.
func (c *WooviClient) GetCharge(
	ctx context.Context,
	env common.Environment,
	correlationID string,
) (*common.Charge, error) {
	url := fmt.Sprintf("%s/api/v1/charge/%s", c.cfg.WooviURL(env), correlationID)
	respBody, err := c.do(ctx, env, http.MethodGet, url, nil, common.PollChargeTimeout)
	if err != nil {
		return nil, err
	}

	var result struct {
		Charge common.Charge `json:"charge"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, common.WrapError(common.ErrUnknown, "Resposta inesperada da API Woovi", err)
	}

	return &result.Charge, nil
}

func (c *WooviClient) do(
	ctx context.Context,
	env common.Environment,
	method, url string,
	body []byte,
	timeout time.Duration,
) ([]byte, error) {
	if !c.breakers.Allow(env) {
		return nil, common.NewError(
			common.ErrUpstreamUnavailable,
			fmt.Sprintf("API Woovi indisponível no momento (circuito aberto para %s)", env),
		)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, url, reader)
	if err != nil {
		return nil, common.WrapError(common.ErrUnknown, "Falha ao montar requisição para a API Woovi", err)
	}
	req.Header.Set("Authorization", c.cfg.WooviCredential(env))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.breakers.RecordFailure(env)
		return nil, common.WrapError(
			common.ErrUpstreamUnavailable,
			"Não foi possível conectar com a API Woovi - verifique sua conexão com a internet",
			err,
		)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.breakers.RecordFailure(env)
		return nil, common.WrapError(common.ErrUpstreamUnavailable, "Falha ao ler resposta da API Woovi", err)
	}

	if resp.StatusCode >= 500 {
		c.breakers.RecordFailure(env)
		return nil, classifyStatus(resp.StatusCode, respBody)
	}

	c.breakers.RecordSuccess(env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyStatus(resp.StatusCode, respBody)
	}

	return respBody, nil
}

// classifyStatus traduz o status HTTP do provedor para a taxonomia de
// erros, com a mensagem apresentável de cada caso.
func classifyStatus(status int, body []byte) *common.Error {
	var upstream struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &upstream)

	switch status {
	case http.StatusBadRequest:
		detail := upstream.Message
		if detail == "" {
			detail = "Verifique os campos obrigatórios (value e correlationID)"
		}
		return common.NewError(common.ErrInvalidRequest, "Dados inválidos: "+detail)
	case http.StatusUnauthorized:
		return common.NewError(common.ErrUnauthorized, "Token de autorização inválido ou expirado - verifique o token Woovi")
	case http.StatusForbidden:
		return common.NewError(common.ErrUnauthorized, "Acesso negado - verifique as permissões da API Woovi")
	case http.StatusNotFound:
		return common.NewError(common.ErrNotFound, "Endpoint não encontrado - verifique a URL da API")
	case http.StatusUnprocessableEntity:
		detail := upstream.Message
		if detail == "" {
			detail = "Dados não processáveis pela API"
		}
		return common.NewError(common.ErrInvalidRequest, "Erro de validação: "+detail)
	case http.StatusInternalServerError:
		return common.NewError(common.ErrUpstreamUnavailable, "Erro interno do servidor Woovi - tente novamente mais tarde")
	default:
		message := fmt.Sprintf("Erro HTTP %d", status)
		if upstream.Message != "" {
			message = fmt.Sprintf("%s: %s", message, upstream.Message)
		}
		if status >= 500 {
			return common.NewError(common.ErrUpstreamUnavailable, message)
		}
		return common.NewError(common.ErrUnknown, message)
	}
}

// ValidateWebhookSignature confere o HMAC-SHA256 (hex) do body cru do
// webhook contra a assinatura recebida no header, em tempo constante.
func ValidateWebhookSignature(secret string, payload []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
