package postgres

import (
	"context"
	"time"

	"easyfuel/internal/domain"
	"easyfuel/internal/types"
)

const depotColumns = `
    order_id, supplier_id, driver_id, status, version,
    payment_proof_ref, payment_proof_by, payment_proof_at, payment_attempts,
    supplier_signature_ref, supplier_signature_by, supplier_signature_at,
    driver_signature_ref, driver_signature_by, driver_signature_at,
    rejection_reason, dispute_reason,
    created_at, accepted_at, paid_at, ready_at, released_at, completed_at, updated_at`

func (s *Store) CreateDepotOrder(ctx context.Context, d *domain.DepotOrder) error {
	proof, supplierSig, driverSig := evidenceCols(d.PaymentProof), evidenceCols(d.SupplierSignature), evidenceCols(d.DriverSignature)
	_, err := s.q.Exec(ctx, `
        INSERT INTO depot_orders (`+depotColumns+`) VALUES (
            $1, $2, $3, $4, $5,
            $6, $7, $8, $9,
            $10, $11, $12,
            $13, $14, $15,
            $16, $17,
            $18, $19, $20, $21, $22, $23, $24
        )`,
		string(d.OrderID), string(d.SupplierID), string(d.DriverID), string(d.Status), d.Version,
		proof.ref, proof.by, proof.at, d.PaymentAttempts,
		supplierSig.ref, supplierSig.by, supplierSig.at,
		driverSig.ref, driverSig.by, driverSig.at,
		d.RejectionReason, d.DisputeReason,
		d.CreatedAt, d.AcceptedAt, d.PaidAt, d.ReadyAt, d.ReleasedAt, d.CompletedAt, d.UpdatedAt,
	)
	return mapWriteErr(err, "create depot order "+string(d.OrderID))
}

func (s *Store) GetDepotOrder(ctx context.Context, orderID types.ID) (*domain.DepotOrder, error) {
	row := s.q.QueryRow(ctx, `SELECT `+depotColumns+` FROM depot_orders WHERE order_id = $1`, string(orderID))

	var d domain.DepotOrder
	var oid, supplierID, driverID, status string
	var proof, supplierSig, driverSig evidenceRow
	err := row.Scan(
		&oid, &supplierID, &driverID, &status, &d.Version,
		&proof.ref, &proof.by, &proof.at, &d.PaymentAttempts,
		&supplierSig.ref, &supplierSig.by, &supplierSig.at,
		&driverSig.ref, &driverSig.by, &driverSig.at,
		&d.RejectionReason, &d.DisputeReason,
		&d.CreatedAt, &d.AcceptedAt, &d.PaidAt, &d.ReadyAt, &d.ReleasedAt, &d.CompletedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, "depot order "+string(orderID))
	}
	d.OrderID = types.ID(oid)
	d.SupplierID = types.ID(supplierID)
	d.DriverID = types.ID(driverID)
	d.Status = domain.DepotStatus(status)
	d.PaymentProof = proof.evidence()
	d.SupplierSignature = supplierSig.evidence()
	d.DriverSignature = driverSig.evidence()
	return &d, nil
}

func (s *Store) UpdateDepotOrder(ctx context.Context, d *domain.DepotOrder, from domain.DepotStatus, version int) (bool, error) {
	proof, supplierSig, driverSig := evidenceCols(d.PaymentProof), evidenceCols(d.SupplierSignature), evidenceCols(d.DriverSignature)
	tag, err := s.q.Exec(ctx, `
        UPDATE depot_orders
        SET status = $1,
            version = version + 1,
            payment_proof_ref = $2, payment_proof_by = $3, payment_proof_at = $4,
            payment_attempts = $5,
            supplier_signature_ref = $6, supplier_signature_by = $7, supplier_signature_at = $8,
            driver_signature_ref = $9, driver_signature_by = $10, driver_signature_at = $11,
            rejection_reason = $12, dispute_reason = $13,
            accepted_at = $14, paid_at = $15, ready_at = $16, released_at = $17, completed_at = $18,
            updated_at = $19
        WHERE order_id = $20 AND status = $21 AND version = $22`,
		string(d.Status),
		proof.ref, proof.by, proof.at,
		d.PaymentAttempts,
		supplierSig.ref, supplierSig.by, supplierSig.at,
		driverSig.ref, driverSig.by, driverSig.at,
		d.RejectionReason, d.DisputeReason,
		d.AcceptedAt, d.PaidAt, d.ReadyAt, d.ReleasedAt, d.CompletedAt,
		d.UpdatedAt,
		string(d.OrderID), string(from), version,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}
	d.Version = version + 1
	return true, nil
}

type evidenceRow struct {
	ref *string
	by  *string
	at  *time.Time
}

func evidenceCols(e *domain.Evidence) evidenceRow {
	if e == nil {
		return evidenceRow{}
	}
	ref, by, at := e.Ref, string(e.SignerID), e.At
	return evidenceRow{ref: &ref, by: &by, at: &at}
}

func (r evidenceRow) evidence() *domain.Evidence {
	if r.ref == nil {
		return nil
	}
	e := &domain.Evidence{Ref: *r.ref}
	if r.by != nil {
		e.SignerID = types.ID(*r.by)
	}
	if r.at != nil {
		e.At = *r.at
	}
	return e
}
