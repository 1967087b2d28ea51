package cissync

import (
	"context"
	"fmt"
	"strconv"
)

// newCustomerQuery selects customers whose installation finished in the
// given period, from the reporting view the legacy system fed its monthly
// new-customer report from. parent_id 178 limits the view to the managed
// regional organization. The finish-date period is compared in the Thai
// Buddhist calendar, as the legacy report did.
const newCustomerQuery = `
	SELECT V.CUS_CODE as CUST_CODE,
	       o.ba_code as BA_CODE,
	       :ym as YM,
	       to_char(V.RQFINISHDATE,'yyyy/mm/dd') as FINISH_DATE,
	       C.ID as CUSTOMER_ID,
	       C.INSTALL_CUS_TITLE as TITLE,
	       C.INSTALL_CUS_NAME as FIRSTNAME,
	       C.INSTALL_CUS_SURNAME as LASTNAME,
	       C.CARD_ID as ID_CARD,
	       CAI.ADDRESS_NO as ADDRESS,
	       CAI.MOBILE
	FROM PWACIS.V_R_005 V
	LEFT JOIN pwacis.tb_lt_organization o on o.id = v.org_owner_id
	LEFT JOIN PWACIS.TB_TR_CUSTOMER_INF C ON V.CUS_CODE = C.CUS_CODE
	LEFT JOIN PWACIS.TB_TR_CUSADDR_INF CAI ON C.ID = CAI.ID AND CAI.ADDR_TYPE = '1'
	WHERE to_number(to_char(V.RQFINISHDATE, 'yyyymm', 'NLS_CALENDAR = ''THAI BUDDHA''')) = :year_month
	  AND o.parent_id = 178`

func (s *SyncService) newCustomerFlow(p SyncParams) flowDef {
	year, month := periodOrNow(p)
	ym := buddhistYearMonth(year, month)
	// The view column compares numerically.
	ymNum, _ := strconv.ParseInt(ym, 10, 64)

	return flowDef{
		kind:  FlowNewCustomer,
		query: newCustomerQuery,
		params: map[string]any{
			"ym":         ym,
			"year_month": ymNum,
		},
		process: func(ctx context.Context, rc *RunContext, row SourceRow) Outcome {
			return s.processNewCustomerRow(ctx, rc, row)
		},
	}
}

func (s *SyncService) processNewCustomerRow(ctx context.Context, rc *RunContext, row SourceRow) Outcome {
	nc := decodeNewCustomerRow(newRowDecoder(row, FlowNewCustomer, s.logger))

	originalID := deref(nc.CustomerID)
	if originalID == "" {
		originalID = deref(nc.CustCode)
	}
	if originalID == "" {
		s.logger.Warn("skipping new-customer row without customer id or cust_code",
			"flow", FlowNewCustomer, "run_id", rc.Run.ID, "ba_code", deref(nc.BACode))
		return OutcomeSkipped
	}

	// The legacy view keys on cust_code while the customer table keys on
	// the numeric id; check both before deciding the customer is new.
	if nc.CustomerID != nil {
		if _, err := s.store.GetCustomerByOriginalID(ctx, *nc.CustomerID); err == nil {
			return OutcomeSkipped
		}
	}
	if nc.CustCode != nil {
		if _, err := s.store.GetCustomerByOriginalID(ctx, *nc.CustCode); err == nil {
			return OutcomeSkipped
		}
	}

	branch := s.resolveBranchSoft(ctx, rc, nc.BACode, nil)
	var custBA *string
	if branch != nil {
		custBA = &branch.BACode
	} else {
		custBA = nc.BACode
	}

	_, created, err := s.upserter.EnsureCustomer(ctx, CustomerFields{
		OriginalID:   originalID,
		Title:        nc.Title,
		FirstName:    nc.FirstName,
		LastName:     nc.LastName,
		IDCard:       nc.IDCard,
		Address:      nc.Address,
		Mobile:       nc.Mobile,
		BranchBACode: custBA,
	})
	if err != nil {
		s.logger.Error(fmt.Sprintf("new customer write failed for %s", originalID),
			"flow", FlowNewCustomer, "run_id", rc.Run.ID,
			"original_id", originalID, "ba_code", deref(nc.BACode),
			"finish_date", deref(nc.FinishDate), "error", err)
		return OutcomeFailed
	}
	if !created {
		// Raced with another writer between the existence checks and the
		// create; the customer exists either way.
		return OutcomeSkipped
	}
	return OutcomeCreated
}
