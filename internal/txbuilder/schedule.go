package txbuilder

import (
	"context"

	"LedgerAgent-Kit/internal/ledger"
)

// ScheduleParams 签署或删除调度交易的参数。
type ScheduleParams struct {
	ScheduleID      string `json:"scheduleId"`
	TransactionMemo string `json:"transactionMemo,omitempty"`
}

// SignSchedule 构建调度签署交易。
func (b *Builder) SignSchedule(_ context.Context, p ScheduleParams) (*Pending, error) {
	id, err := parseEntity("scheduleId", p.ScheduleID)
	if err != nil {
		return nil, err
	}
	return b.build(OpSignSchedule, &ledger.ScheduleSign{ScheduleID: id}, p.TransactionMemo, nil)
}

// DeleteSchedule 构建调度删除交易。
func (b *Builder) DeleteSchedule(_ context.Context, p ScheduleParams) (*Pending, error) {
	id, err := parseEntity("scheduleId", p.ScheduleID)
	if err != nil {
		return nil, err
	}
	return b.build(OpDeleteSchedule, &ledger.ScheduleDelete{ScheduleID: id}, p.TransactionMemo, nil)
}
