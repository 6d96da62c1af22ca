package repo

import (
	"context"
	"database/sql"
	"strings"

	"welfareflow/internal/domain"
)

func (r Repo) UpsertBankBranch(ctx context.Context, tx *sql.Tx, b domain.BankBranch) error {
	_, err := r.conn(tx).ExecContext(ctx, r.q(`INSERT INTO bank_ifsc(ifsc,bank,branch) VALUES (?,?,?)
ON CONFLICT(ifsc) DO UPDATE SET bank=excluded.bank, branch=excluded.branch`), strings.ToUpper(b.IFSC), b.Bank, b.Branch)
	return err
}

func (r Repo) GetBankBranch(ctx context.Context, ifsc string) (domain.BankBranch, error) {
	var b domain.BankBranch
	err := r.DB.QueryRowContext(ctx, r.q(`SELECT ifsc,bank,branch FROM bank_ifsc WHERE ifsc=?`), strings.ToUpper(ifsc)).Scan(&b.IFSC, &b.Bank, &b.Branch)
	if err == sql.ErrNoRows {
		return b, ErrNotFound
	}
	return b, err
}
