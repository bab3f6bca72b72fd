package zalopay_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/payment/zalopay"
)

func testConfig(endpoint string) zalopay.Config {
	return zalopay.Config{
		AppID:           "2553",
		Key1:            "key-one",
		Key2:            "key-two",
		Endpoint:        endpoint,
		CallbackBaseURL: "https://example.ngrok.app/",
		RedirectURL:     "https://shop.example/payment-result",
	}
}

func fixedClient(endpoint string, options ...zalopay.ClientOption) *zalopay.Client {
	// 2024-05-31 20:30 UTC, по GMT+7 это уже 1 июня.
	clock := func() time.Time { return time.Date(2024, 5, 31, 20, 30, 0, 0, time.UTC) }
	options = append([]zalopay.ClientOption{
		zalopay.WithClock(clock),
		zalopay.WithSequence(func() int { return 4242 }),
	}, options...)
	return zalopay.NewClient(testConfig(endpoint), options...)
}

func TestNewOrder_BuildsSignedForm(t *testing.T) {
	client := fixedClient("https://sb-openapi.zalopay.vn/v2/create")

	order := client.NewOrder(150000, "zalopay")

	assert.Equal(t, "240601_4242", order.AppTransID)
	assert.Equal(t, "2553", order.AppID)
	assert.Equal(t, "user123", order.AppUser)
	assert.Equal(t, time.Date(2024, 5, 31, 20, 30, 0, 0, time.UTC).UnixMilli(), order.AppTime)
	assert.Equal(t, "[{}]", order.Item)
	assert.Equal(t, "https://example.ngrok.app/api/v1/payments/zalopay/callback", order.CallbackURL)
	assert.Equal(t, "OCOP Mart - Payment for the order #4242", order.Description)
	assert.Equal(t, "", order.BankCode)

	var embed map[string]string
	require.NoError(t, json.Unmarshal([]byte(order.EmbedData), &embed))
	assert.Equal(t,
		"https://shop.example/payment-result?orderId=240601_4242&paymentMethod=zalopay&orderIdpayment=240601_4242",
		embed["redirecturl"])

	data := "2553|240601_4242|user123|150000|" + order.Values().Get("app_time") + "|" + order.EmbedData + "|[{}]"
	assert.Equal(t, zalopay.Sign("key-one", data), order.MAC)
}

func TestCreateOrder_PostsQueryParameters(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		got = map[string]string{}
		for key := range r.URL.Query() {
			got[key] = r.URL.Query().Get(key)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"return_code":1,"order_url":"https://qcgateway.zalopay.vn/openinapp?order=abc"}`))
	}))
	defer srv.Close()

	client := fixedClient(srv.URL + "/v2/create")
	order := client.NewOrder(99000, "zalopay")

	raw, err := client.CreateOrder(context.Background(), order)
	require.NoError(t, err)
	assert.JSONEq(t, `{"return_code":1,"order_url":"https://qcgateway.zalopay.vn/openinapp?order=abc"}`, string(raw))

	assert.Equal(t, "240601_4242", got["app_trans_id"])
	assert.Equal(t, "99000", got["amount"])
	assert.Equal(t, order.MAC, got["mac"])
	assert.Contains(t, got, "bank_code")
	assert.Equal(t, "[{}]", got["item"])
}

func TestCreateOrder_GatewayFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"return_code":2,"return_message":"invalid mac"}`))
	}))
	defer srv.Close()

	client := fixedClient(srv.URL)
	_, err := client.CreateOrder(context.Background(), client.NewOrder(1000, "zalopay"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrGatewayRequest)
	assert.ErrorIs(t, err, domain.ErrUpstream)

	var gwErr *zalopay.GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, http.StatusBadRequest, gwErr.StatusCode)
	assert.JSONEq(t, `{"return_code":2,"return_message":"invalid mac"}`, string(gwErr.Body))
}

func TestCreateOrder_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	endpoint := srv.URL
	srv.Close()

	client := fixedClient(endpoint)
	_, err := client.CreateOrder(context.Background(), client.NewOrder(1000, "zalopay"))
	assert.ErrorIs(t, err, domain.ErrGatewayRequest)
}

func TestVerifyCallback(t *testing.T) {
	client := fixedClient("https://sb-openapi.zalopay.vn/v2/create")
	data := `{"app_id":2553,"app_trans_id":"240601_4242","amount":99000}`
	mac := zalopay.Sign("key-two", data)

	assert.True(t, client.VerifyCallback(data, mac))
	assert.False(t, client.VerifyCallback(data, zalopay.Sign("key-one", data)))
	assert.False(t, client.VerifyCallback(data+" ", mac))
	assert.False(t, client.VerifyCallback(data, ""))
}

func TestVerify_AnyBitFlipFails(t *testing.T) {
	data := `{"app_trans_id":"240601_1"}`
	mac := zalopay.Sign("secret", data)

	for i := range mac {
		for bit := 0; bit < 8; bit++ {
			flipped := []byte(mac)
			flipped[i] ^= 1 << bit
			assert.False(t, zalopay.Verify("secret", data, string(flipped)), "mac byte %d bit %d", i, bit)
		}
	}

	assert.False(t, zalopay.Verify("secret", data, strings.ToUpper(mac)))
	assert.False(t, zalopay.Verify("secret", data, mac+" "))
	assert.False(t, zalopay.Verify("secret", data, " "+mac))

	raw := []byte(data)
	for i := range raw {
		for bit := 0; bit < 8; bit++ {
			mutated := append([]byte(nil), raw...)
			mutated[i] ^= 1 << bit
			assert.False(t, zalopay.Verify("secret", string(mutated), mac), "byte %d bit %d", i, bit)
		}
	}
}

func TestParseCallbackData(t *testing.T) {
	data, err := zalopay.ParseCallbackData(`{"app_id":2553,"app_trans_id":"240601_4242","amount":99000,"zp_trans_id":240601000000123}`)
	require.NoError(t, err)
	assert.Equal(t, "240601_4242", data.AppTransID)
	assert.Equal(t, int64(99000), data.Amount)
	assert.Equal(t, "240601000000123", data.ZPTransID.String())

	_, err = zalopay.ParseCallbackData(`not json`)
	assert.Error(t, err)
	_, err = zalopay.ParseCallbackData(`{"amount":1}`)
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, testConfig("https://sb-openapi.zalopay.vn/v2/create").Validate())

	cfg := testConfig("")
	cfg.Key2 = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key2")
	assert.Contains(t, err.Error(), "endpoint")
}
