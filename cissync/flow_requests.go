package cissync

import (
	"context"
)

// installationRequestQueryBase is the legacy join across request header,
// customer, address, install detail, billing and organization. The org
// owner list and doc status filter come from the old system: approved,
// non-deleted permanent installations under the managed region offices.
const installationRequestQueryBase = `
	SELECT
	    CUS.ID as CUSTOMER_ID,
	    CUS.INSTALL_CUS_TITLE as TITLE,
	    CUS.INSTALL_CUS_NAME as FIRSTNAME,
	    CUS.INSTALL_CUS_SURNAME as LASTNAME,
	    CUS.CARD_ID as ID_CARD,
	    CAI.ADDRESS_NO as ADDRESS,
	    CAI.MOBILE,
	    RH.ID as REQUEST_ID,
	    RH.REQ_NO as REQUEST_NO,
	    RH.CREATED_DATE,
	    RH.UPDATED_DATE,
	    RH.ORG_OWNER_ID,
	    ORG.BA_CODE as BRANCH_CODE,
	    RH.REQ_DATE as REQUEST_DATE,
	    RH.RQFINISHDATE as ESTIMATED_DATE,
	    RH.APP_DATE as APPROVED_DATE,
	    BILL.PAID_DATE as PAYMENT_DATE,
	    REXP.INSTALL_DATE as INSTALLATION_DATE,
	    RH.UPDATED_DATE as COMPLETION_DATE,
	    REXP.ADD_PRICE as INSTALLATION_FEE,
	    BILL.BILL_NO,
	    RH.REMARK as REMARKS,
	    RH.INSTALL_TYPE as INSTALLATION_TYPE_CODE,
	    RH.DOC_STS as STATUS_CODE,
	    RID.METER_SIZE as METER_SIZE_CODE
	FROM PWACIS.TB_TR_REQ_HEAD_INF RH
	LEFT JOIN PWACIS.TB_TR_CUSTOMER_INF CUS ON RH.CUS_ID = CUS.ID
	LEFT JOIN PWACIS.TB_TR_CUSADDR_INF CAI ON RH.CUS_ID = CAI.ID AND CAI.ADDR_TYPE = '1'
	LEFT JOIN PWACIS.TB_TR_REQ_INSTALL_DETAIL RID ON RH.ID = RID.REQ_ID
	LEFT JOIN PWACIS.TB_TR_INSTALL_TRN REXP ON RID.INSTALL_ID = REXP.ID
	LEFT JOIN PWACIS.TB_TR_BILL BILL ON RH.CUS_ID = BILL.CUST_ID AND BILL.BILL_DETAIL = 2 AND BILL.IS_DELETED = 'F'
	LEFT JOIN PWACIS.TB_LT_ORGANIZATION ORG ON RH.ORG_OWNER_ID = ORG.ID
	WHERE RH.INSTALL_TYPE = '1'
	  AND RH.IS_DELETED = 'F'
	  AND RH.IS_APPROVED = 'T'
	  AND RH.DOC_STS = '11'
	  AND (RH.ORG_OWNER_ID IN (1060, 1061, 1062, 1063, 1064, 1065, 1066, 1067, 1068, 1069,
	                           1070, 1071, 1072, 1073, 1074, 1075, 1076, 1077, 1133, 1134,
	                           1135, 1245))`

func (s *SyncService) installationRequestFlow(p SyncParams) flowDef {
	query := installationRequestQueryBase
	params := map[string]any{}
	if p.StartDate != nil {
		query += " AND RH.REQ_DATE >= :start_date"
		params["start_date"] = *p.StartDate
	}
	if p.EndDate != nil {
		query += " AND RH.REQ_DATE <= :end_date"
		params["end_date"] = *p.EndDate
	}
	if p.BranchCode != nil {
		query += " AND ORG.BA_CODE = :branch_code"
		params["branch_code"] = *p.BranchCode
	}
	query += " ORDER BY RH.REQ_DATE DESC"

	return flowDef{
		kind:      FlowInstallationRequest,
		query:     query,
		params:    params,
		batchSize: s.config.BatchSize,
		process: func(ctx context.Context, rc *RunContext, row SourceRow) Outcome {
			d := newRowDecoder(row, FlowInstallationRequest, s.logger)
			return s.processRequestRow(ctx, rc, decodeRequestRow(d), tempExtras{}, false, p.InitiatedBy)
		},
	}
}

// processRequestRow is the shared pipeline of the installation-request and
// temporary-installation flows: ensure the customer, settle the natural
// key, resolve references, upsert. All failures are contained here.
func (s *SyncService) processRequestRow(ctx context.Context, rc *RunContext, rr requestRow,
	extras tempExtras, temporary bool, initiatedBy *string) Outcome {

	// Customer first, so the request row can link to it.
	var customerID *int64
	if rr.CustomerID != nil {
		branch := s.resolveBranchSoft(ctx, rc, rr.BACode, rr.OrgID)
		var custBA *string
		if branch != nil {
			custBA = &branch.BACode
		}
		cust, _, err := s.upserter.EnsureCustomer(ctx, CustomerFields{
			OriginalID:   *rr.CustomerID,
			Title:        rr.Title,
			FirstName:    rr.FirstName,
			LastName:     rr.LastName,
			IDCard:       rr.IDCard,
			Address:      rr.Address,
			Mobile:       rr.Mobile,
			BranchBACode: custBA,
		})
		if err != nil {
			s.logRowFailure(rc, rr, "customer write failed", err)
			return OutcomeFailed
		}
		customerID = &cust.ID
	}

	// Natural key: use the request number, or synthesize one from the
	// numeric source row id when the number is absent.
	requestNo := ""
	if rr.RequestNo != nil {
		requestNo = NormalizeRequestNo(*rr.RequestNo)
	}
	if requestNo == "" {
		if rr.RequestID == nil {
			s.logger.Warn("skipping request row without request_no and request id",
				"flow", rc.Run.FlowKind, "run_id", rc.Run.ID, "ba_code", deref(rr.BACode))
			return OutcomeSkipped
		}
		requestNo = "REQ-" + *rr.RequestID
		s.logger.Warn("synthesized request_no from source request id",
			"flow", rc.Run.FlowKind, "run_id", rc.Run.ID, "request_no", requestNo)
	}

	// Dependent references. Resolution never fails the row: an unresolvable
	// reference becomes a null link.
	branch := s.resolveBranchSoft(ctx, rc, rr.BACode, rr.OrgID)
	var branchBA *string
	if branch != nil {
		branchBA = &branch.BACode
	} else {
		branchBA = rr.BACode
	}

	var statusCode *string
	if rr.StatusCode != nil {
		if status, err := s.resolver.ResolveStatus(ctx, rc, *rr.StatusCode); err != nil {
			s.logger.Warn("status resolution failed, leaving link empty",
				"flow", rc.Run.FlowKind, "run_id", rc.Run.ID, "status_code", *rr.StatusCode, "error", err)
		} else if status != nil {
			statusCode = &status.Code
		}
	}

	var typeCode *string
	if temporary {
		// Temporary installations always use the fixed temporary type,
		// whatever the source row claims.
		if typ, err := s.resolver.ResolveInstallationType(ctx, rc, TemporaryInstallationTypeCode, "Temporary Installation"); err != nil {
			s.logger.Warn("installation type resolution failed, leaving link empty",
				"flow", rc.Run.FlowKind, "run_id", rc.Run.ID, "installation_type_code", TemporaryInstallationTypeCode, "error", err)
		} else if typ != nil {
			typeCode = &typ.Code
		}
	} else if rr.TypeCode != nil {
		if typ, err := s.resolver.ResolveInstallationType(ctx, rc, *rr.TypeCode, ""); err != nil {
			s.logger.Warn("installation type resolution failed, leaving link empty",
				"flow", rc.Run.FlowKind, "run_id", rc.Run.ID, "installation_type_code", *rr.TypeCode, "error", err)
		} else if typ != nil {
			typeCode = &typ.Code
		}
	}

	var meterSizeCode *string
	if rr.MeterSizeCode != nil {
		if size, err := s.resolver.ResolveMeterSize(ctx, rc, *rr.MeterSizeCode); err != nil {
			s.logger.Warn("meter size resolution failed, leaving link empty",
				"flow", rc.Run.FlowKind, "run_id", rc.Run.ID, "meter_size_code", *rr.MeterSizeCode, "error", err)
		} else if size != nil {
			meterSizeCode = &size.Code
		}
	}

	f := RequestFields{
		RequestNo:        requestNo,
		CustomerID:       customerID,
		BranchBACode:     branchBA,
		StatusCode:       statusCode,
		TypeCode:         typeCode,
		MeterSizeCode:    meterSizeCode,
		RequestDate:      rr.RequestDate,
		EstimatedDate:    rr.EstimatedDate,
		ApprovedDate:     rr.ApprovedDate,
		PaymentDate:      rr.PaymentDate,
		InstallationDate: rr.InstallationDate,
		CompletionDate:   rr.CompletionDate,
		InstallationFee:  rr.InstallationFee,
		BillNo:           rr.BillNo,
		Remarks:          rr.Remarks,
		SourceRequestID:  rr.RequestID,
		CreatedBy:        initiatedBy,
	}
	if temporary {
		f.RequestDate = extras.CreatedDate
		f.CompletionDate = extras.UpdatedDate
		f.ExpirationDate = extras.ExpirationDate
		f.InstallationFee = extras.AdditionalPrice
		f.SourceInstallID = extras.InstallationID
	}

	out, err := s.upserter.UpsertRequest(ctx, f)
	if err != nil {
		s.logRowFailure(rc, rr, "request upsert failed for "+requestNo, err)
		return OutcomeFailed
	}
	return out
}

// resolveBranchSoft resolves a branch but degrades to "no branch" on any
// resolver error; the caller keeps the raw ba_code as a best-effort link.
func (s *SyncService) resolveBranchSoft(ctx context.Context, rc *RunContext, baCode *string, orgID *int64) *Branch {
	if baCode == nil {
		return nil
	}
	branch, err := s.resolver.ResolveBranch(ctx, rc, *baCode, orgID)
	if err != nil {
		s.logger.Warn("branch resolution failed, leaving link empty",
			"flow", rc.Run.FlowKind, "run_id", rc.Run.ID, "ba_code", *baCode, "error", err)
		return nil
	}
	return branch
}

// logRowFailure logs a contained row failure with the natural key and all
// dependent codes involved, for operational diagnosis.
func (s *SyncService) logRowFailure(rc *RunContext, rr requestRow, msg string, err error) {
	s.logger.Error(msg,
		"flow", rc.Run.FlowKind,
		"run_id", rc.Run.ID,
		"request_no", deref(rr.RequestNo),
		"ba_code", deref(rr.BACode),
		"status_code", deref(rr.StatusCode),
		"installation_type_code", deref(rr.TypeCode),
		"meter_size_code", deref(rr.MeterSizeCode),
		"customer_id", deref(rr.CustomerID),
		"error", err)
}
