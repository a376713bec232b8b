package api

import (
	"fmt"
	"time"

	"github.com/helios-fi/margin/pkg/margin"
)

func (s *Server) processMessage(client *Client, msg map[string]interface{}) {
	msgType, ok := msg["type"].(string)
	if !ok {
		client.sendError("invalid message type", "")
		return
	}

	requestID := ""
	if rid, ok := msg["request_id"].(string); ok {
		requestID = rid
	}

	switch msgType {
	case "ping":
		s.handlePing(client, requestID)
	case "subscribe":
		s.handleSubscribe(client, msg, requestID)
	case "unsubscribe":
		s.handleUnsubscribe(client, msg, requestID)
	case "get_settings":
		s.handleGetSettings(client, requestID)
	case "get_vaults":
		s.handleGetVaults(client, requestID)
	case "get_vault":
		s.handleGetVault(client, msg, requestID)
	case "get_position":
		s.handleGetPosition(client, msg, requestID)
	case "get_pool":
		s.handleGetPool(client, msg, requestID)
	case "get_balance":
		s.handleGetBalance(client, msg, requestID)
	case "get_metrics":
		s.handleGetMetrics(client, requestID)
	default:
		client.sendError(fmt.Sprintf("unknown message type: %s", msgType), requestID)
	}
}

func (s *Server) handlePing(client *Client, requestID string) {
	client.sendMessage(Message{
		Type:      "pong",
		RequestID: requestID,
		Timestamp: time.Now().Unix(),
	})
}

func (s *Server) handleSubscribe(client *Client, msg map[string]interface{}, requestID string) {
	channels, ok := channelList(msg)
	if !ok {
		client.sendError("missing or invalid channels", requestID)
		return
	}

	client.mu.Lock()
	for _, ch := range channels {
		client.subscriptions[ch] = true
	}
	client.mu.Unlock()

	s.metrics.mu.Lock()
	s.metrics.SubscriptionsActive += int64(len(channels))
	s.metrics.mu.Unlock()

	client.sendMessage(Message{
		Type:      "subscribed",
		Data:      map[string]interface{}{"channels": channels},
		RequestID: requestID,
		Timestamp: time.Now().Unix(),
	})
}

func (s *Server) handleUnsubscribe(client *Client, msg map[string]interface{}, requestID string) {
	channels, ok := channelList(msg)
	if !ok {
		client.sendError("missing or invalid channels", requestID)
		return
	}

	client.mu.Lock()
	for _, ch := range channels {
		delete(client.subscriptions, ch)
	}
	client.mu.Unlock()

	s.metrics.mu.Lock()
	s.metrics.SubscriptionsActive -= int64(len(channels))
	s.metrics.mu.Unlock()

	client.sendMessage(Message{
		Type:      "unsubscribed",
		Data:      map[string]interface{}{"channels": channels},
		RequestID: requestID,
		Timestamp: time.Now().Unix(),
	})
}

func channelList(msg map[string]interface{}) ([]string, bool) {
	raw, ok := msg["channels"].([]interface{})
	if !ok {
		return nil, false
	}
	channels := make([]string, 0, len(raw))
	for _, c := range raw {
		ch, ok := c.(string)
		if !ok {
			return nil, false
		}
		channels = append(channels, ch)
	}
	return channels, len(channels) > 0
}

// Read queries

func (s *Server) handleGetSettings(client *Client, requestID string) {
	gs, err := s.engine.GetGlobalSettings()
	if err != nil {
		s.sendQueryError(client, err, requestID)
		return
	}
	client.sendMessage(Message{
		Type: "settings",
		Data: map[string]interface{}{
			"super_admin":     gs.SuperAdmin.String(),
			"fee_wallet":      gs.FeeWallet.String(),
			"tip_wallet":      gs.TipWallet.String(),
			"trading_enabled": gs.TradingEnabled,
			"lp_enabled":      gs.LpEnabled,
		},
		RequestID: requestID,
		Timestamp: time.Now().Unix(),
	})
}

func (s *Server) handleGetVaults(client *Client, requestID string) {
	s.mu.RLock()
	tracked := make(map[string]margin.Address, len(s.vaults))
	for label, addr := range s.vaults {
		tracked[label] = addr
	}
	s.mu.RUnlock()

	vaults := make(map[string]interface{}, len(tracked))
	for label, addr := range tracked {
		snapshot, err := s.vaultSnapshot(addr)
		if err != nil {
			continue
		}
		vaults[label] = snapshot
	}
	client.sendMessage(Message{
		Type:      "vaults",
		Data:      map[string]interface{}{"vaults": vaults},
		RequestID: requestID,
		Timestamp: time.Now().Unix(),
	})
}

func (s *Server) handleGetVault(client *Client, msg map[string]interface{}, requestID string) {
	addr, ok := addressField(msg, "vault")
	if !ok {
		client.sendError("missing vault address", requestID)
		return
	}
	snapshot, err := s.vaultSnapshot(addr)
	if err != nil {
		s.sendQueryError(client, err, requestID)
		return
	}
	client.sendMessage(Message{
		Type:      "vault",
		Data:      snapshot,
		RequestID: requestID,
		Timestamp: time.Now().Unix(),
	})
}

func (s *Server) handleGetPosition(client *Client, msg map[string]interface{}, requestID string) {
	addr, ok := addressField(msg, "position")
	if !ok {
		client.sendError("missing position address", requestID)
		return
	}
	position, err := s.engine.GetPosition(addr)
	if err != nil {
		s.sendQueryError(client, err, requestID)
		return
	}
	client.sendMessage(Message{
		Type: "position",
		Data: map[string]interface{}{
			"address":           position.Address.String(),
			"trader":            position.Trader.String(),
			"currency_mint":     position.CurrencyMint.String(),
			"collateral_mint":   position.CollateralMint.String(),
			"down_payment":      position.DownPayment,
			"principal":         position.Principal,
			"collateral_amount": position.CollateralAmount,
			"fees_to_be_paid":   position.FeesToBePaid,
			"last_funding":      position.LastFundingTimestamp,
		},
		RequestID: requestID,
		Timestamp: time.Now().Unix(),
	})
}

func (s *Server) handleGetPool(client *Client, msg map[string]interface{}, requestID string) {
	addr, ok := addressField(msg, "pool")
	if !ok {
		client.sendError("missing pool address", requestID)
		return
	}
	pool, err := s.engine.GetPool(addr)
	if err != nil {
		s.sendQueryError(client, err, requestID)
		return
	}
	client.sendMessage(Message{
		Type: "pool",
		Data: map[string]interface{}{
			"address":          pool.Address.String(),
			"is_long_pool":     pool.IsLongPool,
			"collateral_mint":  pool.CollateralMint.String(),
			"currency_mint":    pool.CurrencyMint.String(),
			"collateral_vault": pool.CollateralVault.String(),
			"currency_vault":   pool.CurrencyVault.String(),
		},
		RequestID: requestID,
		Timestamp: time.Now().Unix(),
	})
}

func (s *Server) handleGetBalance(client *Client, msg map[string]interface{}, requestID string) {
	addr, ok := addressField(msg, "account")
	if !ok {
		client.sendError("missing account address", requestID)
		return
	}
	balance, err := s.engine.Balance(addr)
	if err != nil {
		s.sendQueryError(client, err, requestID)
		return
	}
	client.sendMessage(Message{
		Type: "balance",
		Data: map[string]interface{}{
			"account": addr.String(),
			"balance": balance,
		},
		RequestID: requestID,
		Timestamp: time.Now().Unix(),
	})
}

func (s *Server) handleGetMetrics(client *Client, requestID string) {
	client.sendMessage(Message{
		Type:      "metrics",
		Data:      s.metrics.GetSnapshot(),
		RequestID: requestID,
		Timestamp: time.Now().Unix(),
	})
}

func (s *Server) sendQueryError(client *Client, err error, requestID string) {
	s.metrics.mu.Lock()
	s.metrics.ErrorCount++
	s.metrics.mu.Unlock()
	client.sendError(err.Error(), requestID)
}

func addressField(msg map[string]interface{}, key string) (margin.Address, bool) {
	raw, ok := msg[key].(string)
	if !ok || raw == "" {
		return margin.ZeroAddress, false
	}
	return margin.AddressFromString(raw), true
}
