package common

type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentSandbox    Environment = "sandbox"
)

func EnvironmentFor(useSandbox bool) Environment {
	if useSandbox {
		return EnvironmentSandbox
	}
	return EnvironmentProduction
}

type Customer struct {
	Name  string `json:"name,omitempty"`
	TaxID string `json:"taxID,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

func (c *Customer) Empty() bool {
	return c == nil || (c.Name == "" && c.TaxID == "" && c.Email == "" && c.Phone == "")
}

type AdditionalInfo struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// CreateChargeRequest é o body aceito em POST /api/create-pix-charge.
// Duração pode vir como expiresIn (segundos) ou days; expiresIn tem prioridade.
type CreateChargeRequest struct {
	Value          int64            `json:"value"`
	ExpiresIn      int              `json:"expiresIn"`
	Days           int              `json:"days"`
	CampaignType   string           `json:"campaignType"`
	Comment        string           `json:"comment"`
	CustomerName   string           `json:"customerName"`
	CustomerPhone  string           `json:"customerPhone"`
	CustomerEmail  string           `json:"customerEmail"`
	CustomerTaxID  string           `json:"customerTaxID"`
	AdditionalInfo []AdditionalInfo `json:"additionalInfo"`
	CorrelationID  string           `json:"correlationID"`
	UseSandbox     bool             `json:"useSandbox"`
}

type WebhookConfig struct {
	URL string `json:"url"`
}

// WooviChargePayload é o body enviado para POST {base}/api/v1/charge.
type WooviChargePayload struct {
	CorrelationID  string           `json:"correlationID"`
	Value          int64            `json:"value"`
	Comment        string           `json:"comment"`
	ExpiresIn      int              `json:"expiresIn"`
	Customer       *Customer        `json:"customer,omitempty"`
	AdditionalInfo []AdditionalInfo `json:"additionalInfo,omitempty"`
	Webhook        *WebhookConfig   `json:"webhook,omitempty"`
}

// Charge espelha os campos da cobrança retornada pela API Woovi/OpenPix.
type Charge struct {
	Status         string `json:"status"`
	CorrelationID  string `json:"correlationID"`
	Value          int64  `json:"value"`
	Comment        string `json:"comment,omitempty"`
	BRCode         string `json:"brCode,omitempty"`
	QRCodeImage    string `json:"qrCodeImage,omitempty"`
	PaymentLinkURL string `json:"paymentLinkUrl,omitempty"`
	ExpiresIn      int    `json:"expiresIn,omitempty"`
	ExpiresDate    string `json:"expiresDate,omitempty"`
	PaidAt         string `json:"paidAt,omitempty"`
	ExpiredAt      string `json:"expiredAt,omitempty"`
}

// ChargeCreated é a resposta da criação repassada ao cliente,
// acrescida do correlation ID local.
type ChargeCreated struct {
	CorrelationID string `json:"correlationID"`
	Charge        Charge `json:"charge"`
}

// WebhookEvent é o body recebido em POST /api/woovi-webhook.
type WebhookEvent struct {
	Event  string `json:"event"`
	Charge Charge `json:"charge"`
}

const (
	EventChargeCompleted     = "OPENPIX:CHARGE_COMPLETED"
	EventTransactionReceived = "woovi:TRANSACTION_RECEIVED"
	EventChargeExpired       = "OPENPIX:CHARGE_EXPIRED"
)
