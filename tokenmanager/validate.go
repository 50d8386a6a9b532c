package tokenmanager

import (
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	solanago "github.com/Ojas-Arora/token-app/solana"
)

func parseDecimals(op, s string) (uint8, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, invalidInput(op, "decimals are required")
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, invalidInput(op, "decimals %q must be a whole number", s)
	}
	if n < 0 || n > int(solanago.MaxDecimals) {
		return 0, invalidInput(op, "decimals must be between 0 and %d", solanago.MaxDecimals)
	}
	return uint8(n), nil
}

func requireText(op, field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", invalidInput(op, "%s is required", field)
	}
	return value, nil
}

// parseAddress decodes a base58 account address.
func parseAddress(op, field, s string) (solana.PublicKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return solana.PublicKey{}, invalidInput(op, "%s is required", field)
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return solana.PublicKey{}, invalidInput(op, "%s %q is not valid base58", field, s)
	}
	if len(raw) != solana.PublicKeyLength {
		return solana.PublicKey{}, invalidInput(op, "%s must be 32 bytes, got %d", field, len(raw))
	}
	return solana.PublicKeyFromBytes(raw), nil
}

// parseWalletAddress is parseAddress for keys that must be able to sign, so
// program derived addresses are refused.
func parseWalletAddress(op, field, s string) (solana.PublicKey, error) {
	key, err := parseAddress(op, field, s)
	if err != nil {
		return key, err
	}
	if !solanago.IsOnCurve(key) {
		return solana.PublicKey{}, invalidInput(op, "%s %s is not a wallet address", field, key)
	}
	return key, nil
}
