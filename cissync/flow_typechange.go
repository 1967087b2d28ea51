package cissync

import (
	"context"
	"strconv"
)

// customerTypeChangeQuery reads the change history for the customer use-type
// field, one row per customer for the period (the subselect keeps only the
// latest change). The history table stamps Gregorian periods while the debt
// table stores Buddhist-era debt_ym, so the query takes both renditions of
// the same period. The ba_code travels under the legacy ORG_OWNER_ID alias.
const customerTypeChangeQuery = `
	SELECT c.id as CUST_ID,
	       c.CUS_CODE as CUST_CODE,
	       USET.USETYPE as OLD_USETYPE,
	       USET.USENAME as OLD_USETYPE_NAME,
	       USET1.USETYPE as NEW_USETYPE,
	       USET1.USENAME as NEW_USETYPE_NAME,
	       dt.present_water_usg,
	       o.ba_code as ORG_OWNER_ID,
	       to_char(cch.CREATED_DATE,'yyyy/mm/dd') AS CHANGE_DATE,
	       C.INSTALL_CUS_TITLE as TITLE,
	       C.INSTALL_CUS_NAME as FIRSTNAME,
	       C.INSTALL_CUS_SURNAME as LASTNAME,
	       C.CARD_ID as ID_CARD,
	       CAI.ADDRESS_NO as ADDRESS,
	       CAI.MOBILE
	FROM pwacis.tb_tr_cust_chg_his cch
	INNER JOIN pwacis.TB_LT_USETYPE USET ON CCH.OLD_VALUE = USET.ID
	INNER JOIN pwacis.TB_LT_USETYPE USET1 ON CCH.NEW_VALUE = USET1.ID
	INNER JOIN pwacis.tb_tr_customer_inf c ON cch.CUS_ID = c.ID
	INNER JOIN pwacis.tb_lt_organization o ON o.ID = cch.org_owner_id
	INNER JOIN pwacis.tb_tr_debt_trn dt on dt.cust_id = c.id
	LEFT JOIN PWACIS.TB_TR_CUSADDR_INF CAI ON C.ID = CAI.ID AND CAI.ADDR_TYPE = '1'
	WHERE SUBSTR(cch.FIELD_NAME, 20) = 'CUS_TYPE_ID'
	  AND to_number(to_char(cch.CREATED_DATE,'yyyymm')) = :year_month
	  AND o.parent_id = 178
	  AND dt.debt_ym = :year_month_th
	  AND cch.id in (select max(id) as id from pwacis.tb_tr_cust_chg_his
	                 where FIELD_NAME LIKE '%CUS_TYPE_ID'
	                 and to_char(created_date,'yyyymm') = :year_month
	                 group by cus_id)`

func (s *SyncService) customerTypeChangeFlow(p SyncParams) flowDef {
	year, month := periodOrNow(p)
	ymNum, _ := strconv.ParseInt(yearMonth(year, month), 10, 64)

	return flowDef{
		kind:  FlowCustomerTypeChange,
		query: customerTypeChangeQuery,
		params: map[string]any{
			"year_month":    ymNum,
			"year_month_th": buddhistYearMonth(year, month),
		},
		process: func(ctx context.Context, rc *RunContext, row SourceRow) Outcome {
			return s.processTypeChangeRow(ctx, rc, row)
		},
	}
}

func (s *SyncService) processTypeChangeRow(ctx context.Context, rc *RunContext, row SourceRow) Outcome {
	tc := decodeTypeChangeRow(newRowDecoder(row, FlowCustomerTypeChange, s.logger))

	originalID := deref(tc.CustID)
	if originalID == "" {
		originalID = deref(tc.CustCode)
	}
	if originalID == "" {
		s.logger.Warn("skipping type-change row without cust_id or cust_code",
			"flow", FlowCustomerTypeChange, "run_id", rc.Run.ID, "ba_code", deref(tc.BACode))
		return OutcomeSkipped
	}

	// Find the customer under either legacy key; create from the row when
	// neither is known yet.
	cust, customerCreated, err := s.findOrCreateTypeChangeCustomer(ctx, rc, tc, originalID)
	if err != nil {
		s.logger.Error("type-change customer write failed",
			"flow", FlowCustomerTypeChange, "run_id", rc.Run.ID,
			"original_id", originalID, "ba_code", deref(tc.BACode), "error", err)
		return OutcomeFailed
	}

	recorder, ok := s.store.(TypeChangeRecorder)
	if !ok {
		// The store has no type-change trail; the change is observed but
		// cannot be recorded.
		s.logger.Info("customer type change observed but store records no trail",
			"flow", FlowCustomerTypeChange, "run_id", rc.Run.ID,
			"original_id", originalID,
			"old_type", deref(tc.OldCode), "new_type", deref(tc.NewCode))
		if customerCreated {
			return OutcomeCreated
		}
		return OutcomeSkipped
	}

	change := TypeChangeRecord{
		ChangeDate: deref(tc.ChangeDate),
		OldCode:    deref(tc.OldCode),
		OldName:    deref(tc.OldName),
		NewCode:    deref(tc.NewCode),
		NewName:    deref(tc.NewName),
	}
	if err := recorder.AppendCustomerTypeChange(ctx, cust.ID, change); err != nil {
		s.logger.Error("type-change trail write failed",
			"flow", FlowCustomerTypeChange, "run_id", rc.Run.ID,
			"original_id", originalID,
			"old_type", change.OldCode, "new_type", change.NewCode, "error", err)
		return OutcomeFailed
	}

	if customerCreated {
		return OutcomeCreated
	}
	return OutcomeUpdated
}

func (s *SyncService) findOrCreateTypeChangeCustomer(ctx context.Context, rc *RunContext,
	tc typeChangeRow, originalID string) (*Customer, bool, error) {

	if tc.CustID != nil {
		if cust, err := s.store.GetCustomerByOriginalID(ctx, *tc.CustID); err == nil {
			return cust, false, nil
		}
	}
	if tc.CustCode != nil {
		if cust, err := s.store.GetCustomerByOriginalID(ctx, *tc.CustCode); err == nil {
			return cust, false, nil
		}
	}

	branch := s.resolveBranchSoft(ctx, rc, tc.BACode, nil)
	var custBA *string
	if branch != nil {
		custBA = &branch.BACode
	} else {
		custBA = tc.BACode
	}

	return s.upserter.EnsureCustomer(ctx, CustomerFields{
		OriginalID:   originalID,
		Title:        tc.Title,
		FirstName:    tc.FirstName,
		LastName:     tc.LastName,
		IDCard:       tc.IDCard,
		Address:      tc.Address,
		Mobile:       tc.Mobile,
		BranchBACode: custBA,
	})
}
