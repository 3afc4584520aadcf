package adapters

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/boxfi/boxd/internal/bank"
	"github.com/boxfi/boxd/internal/vault"
)

var ErrFlashRepayment = errors.New("adapters: flash loan not repaid")

// BankFlashLender lends out of its own account for the duration of a single
// callback. Repayment is enforced by pulling the principal back after the
// callback returns; the enclosing vault operation reverts if the pull fails.
type BankFlashLender struct {
	name    string
	bank    *bank.Bank
	account common.Address
}

func NewBankFlashLender(name string, b *bank.Bank, account common.Address) *BankFlashLender {
	return &BankFlashLender{name: name, bank: b, account: account}
}

func (l *BankFlashLender) Name() string { return l.name }

func (l *BankFlashLender) FlashLoan(token, borrower common.Address, amount *big.Int, fn func() error) error {
	if err := l.bank.Transfer(token, l.account, borrower, amount); err != nil {
		return fmt.Errorf("flash %s: %w", l.name, err)
	}
	if err := fn(); err != nil {
		return err
	}
	if err := l.bank.Transfer(token, borrower, l.account, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrFlashRepayment, err)
	}
	return nil
}

var _ vault.FlashLender = (*BankFlashLender)(nil)
