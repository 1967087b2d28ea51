package cissync

import (
	"context"
)

// temporaryInstallationQuery selects requests in the temporary doc statuses.
// Finished requests (DOC_STS 20) are limited to the completion period, which
// the source formats in the Thai Buddhist calendar. The bill join can fan
// out, so billing columns are collapsed with MIN under a GROUP BY.
const temporaryInstallationQuery = `
	SELECT
	    CUS.ID as CUSTOMER_ID,
	    CUS.INSTALL_CUS_TITLE as TITLE,
	    CUS.INSTALL_CUS_NAME as FIRSTNAME,
	    CUS.INSTALL_CUS_SURNAME as LASTNAME,
	    CUS.CARD_ID as ID_CARD,
	    CAI.ADDRESS_NO as ADDRESS,
	    CAI.MOBILE,
	    RH.ID as REQUEST_ID,
	    RID.INSTALL_ID as INSTALLATION_ID,
	    RH.REQ_NO as REQUEST_NO,
	    REXP.EXP_DATE as EXPIRATION_DATE,
	    REXP.ADD_PRICE as ADDITIONAL_PRICE,
	    RH.CREATED_DATE as CREATED_DATE,
	    RH.UPDATED_DATE as UPDATED_DATE,
	    RH.ORG_OWNER_ID,
	    ORG.BA_CODE as BRANCH_CODE,
	    RH.RQFINISHDATE as ESTIMATED_DATE,
	    RH.APP_DATE as APPROVED_DATE,
	    RH.REMARK as REMARKS,
	    RH.INSTALL_TYPE as INSTALLATION_TYPE_CODE,
	    RH.DOC_STS as STATUS_CODE,
	    RID.METER_SIZE as METER_SIZE_CODE,
	    MIN(BILL.BILL_NO) as BILL_NO,
	    MIN(BILL.PAID_DATE) as PAYMENT_DATE,
	    REXP.INSTALL_DATE as INSTALLATION_DATE
	FROM PWACIS.TB_TR_REQ_HEAD_INF RH
	LEFT JOIN PWACIS.TB_TR_CUSTOMER_INF CUS ON RH.CUS_ID = CUS.ID
	LEFT JOIN PWACIS.TB_TR_CUSADDR_INF CAI ON RH.CUS_ID = CAI.CUS_ID
	LEFT JOIN PWACIS.TB_TR_REQ_INSTALL_DETAIL RID ON RH.ID = RID.REQ_ID
	LEFT JOIN PWACIS.TB_TR_INSTALL_TRN REXP ON RID.INSTALL_ID = REXP.ID
	LEFT JOIN PWACIS.TB_TR_BILL BILL ON RH.CUS_ID = BILL.CUST_ID AND (BILL.BILL_DETAIL = 2 AND BILL.IS_DELETED = 'F')
	LEFT JOIN PWACIS.TB_LT_ORGANIZATION ORG ON RH.ORG_OWNER_ID = ORG.ID
	WHERE RH.INSTALL_TYPE = '1'
	  AND RH.UPDATED_DATE IS NOT NULL
	  AND (RH.ORG_OWNER_ID IN (1060, 1061, 1062, 1063, 1064, 1065, 1066, 1067, 1068, 1069,
	                           1070, 1071, 1072, 1073, 1074, 1075, 1076, 1077, 1133, 1134,
	                           1135, 1245))
	  AND (RH.DOC_STS = '13' OR RH.DOC_STS = '14'
	       OR (RH.DOC_STS = '20' AND TO_CHAR(RH.RQFINISHDATE, 'YYYYMM', 'NLS_CALENDAR = ''THAI BUDDHA''') = :year_month))
	GROUP BY
	    CUS.ID, CUS.INSTALL_CUS_TITLE, CUS.INSTALL_CUS_NAME, CUS.INSTALL_CUS_SURNAME,
	    CUS.CARD_ID, CAI.ADDRESS_NO, CAI.MOBILE, RH.ID, RID.INSTALL_ID, RH.REQ_NO,
	    REXP.EXP_DATE, RH.CREATED_DATE, RH.UPDATED_DATE, RH.ORG_OWNER_ID, ORG.BA_CODE,
	    RH.RQFINISHDATE, RH.APP_DATE, RH.REMARK, RH.INSTALL_TYPE, RH.DOC_STS,
	    RID.METER_SIZE, REXP.INSTALL_DATE, REXP.ADD_PRICE`

func (s *SyncService) temporaryInstallationFlow(p SyncParams) flowDef {
	year, month := periodOrNow(p)

	return flowDef{
		kind:  FlowTemporaryInstallation,
		query: temporaryInstallationQuery,
		params: map[string]any{
			// The source column is rendered in the Buddhist era.
			"year_month": buddhistYearMonth(year, month),
		},
		batchSize: s.config.BatchSize,
		process: func(ctx context.Context, rc *RunContext, row SourceRow) Outcome {
			d := newRowDecoder(row, FlowTemporaryInstallation, s.logger)
			return s.processRequestRow(ctx, rc, decodeRequestRow(d), decodeTempExtras(d), true, p.InitiatedBy)
		},
	}
}
