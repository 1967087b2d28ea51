package cissync

import (
	"context"
)

// holidayQueryBase pulls the legacy holiday calendar, excluding the rows
// the old system used to mark plain weekends. Yearly-repeating national
// holidays are flagged by their Thai names, as the legacy reports did.
const holidayQueryBase = `
	SELECT TO_CHAR(HOLIDAY_DATE, 'YYYY-MM-DD') AS HOLIDAY_DATE,
	    DESC_TH AS DESCRIPTION,
	    UPDATE_BY AS LASTUPDATE,
	    1 AS IS_NATIONAL_HOLIDAY,
	    CASE
	        WHEN REGEXP_LIKE(DESC_TH, '(วันขึ้นปีใหม่|วันสงกรานต์|วันแรงงาน|วันวิสาขบูชา|วันเฉลิมพระชนมพรรษา|วันจักรี|วันรัฐธรรมนูญ|วันปิยมหาราช)') THEN 1
	        ELSE 0
	    END AS IS_REPEATING_YEARLY
	FROM PWACIS.TB_MS_HOLIDAY
	WHERE NVL(DESC_EN, ' ') NOT IN ('Sunday', 'Saturday')`

func (s *SyncService) holidayFlow(p SyncParams) flowDef {
	query := holidayQueryBase
	params := map[string]any{}
	if p.Year != nil {
		query += " AND EXTRACT(YEAR FROM HOLIDAY_DATE) = :year"
		params["year"] = *p.Year
	}
	query += " ORDER BY HOLIDAY_DATE"

	return flowDef{
		kind:   FlowHoliday,
		query:  query,
		params: params,
		process: func(ctx context.Context, rc *RunContext, row SourceRow) Outcome {
			return s.processHolidayRow(ctx, rc, row, p.InitiatedBy)
		},
	}
}

func (s *SyncService) processHolidayRow(ctx context.Context, rc *RunContext, row SourceRow, initiatedBy *string) Outcome {
	hr := decodeHolidayRow(newRowDecoder(row, FlowHoliday, s.logger))
	if hr.Date == nil {
		s.logger.Error("holiday row has no parseable date",
			"flow", FlowHoliday, "run_id", rc.Run.ID, "holiday_date", row["holiday_date"])
		return OutcomeFailed
	}

	sourceID := hr.Date.Format("2006-01-02")
	if hr.DateRaw != nil {
		sourceID = *hr.DateRaw
	}
	out, err := s.upserter.UpsertHoliday(ctx, HolidayFields{
		Date:        *hr.Date,
		SourceID:    sourceID,
		Description: hr.Description,
		IsNational:  hr.IsNational,
		IsRepeating: hr.IsRepeating,
		UpdatedBy:   initiatedBy,
	})
	if err != nil {
		s.logger.Error("holiday row failed",
			"flow", FlowHoliday, "run_id", rc.Run.ID, "holiday_date", sourceID, "error", err)
		return OutcomeFailed
	}
	return out
}
