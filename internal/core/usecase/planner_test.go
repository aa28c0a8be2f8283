package usecase

import (
	"slices"
	"testing"

	"github.com/kirillkom/autoreport-rag/internal/core/domain"
)

func conversationWith(plans ...domain.QueryPlan) *domain.Conversation {
	conv := domain.NewConversation("test", 10)
	for _, p := range plans {
		conv.Append(domain.Turn{Question: "previous", Answer: "previous answer", Plan: p})
	}
	return conv
}

func TestPlannerFallbackIsFactualWithoutFilters(t *testing.T) {
	planner := NewPlanner(PlannerConfig{})
	prev := domain.QueryPlan{
		Template: domain.TemplateTrend,
		Filter:   domain.Filter{Companies: []domain.Company{domain.CompanyBMW}, Years: []int{2023}},
	}

	for _, q := range []string{"Tell me something interesting", "hello there", "???", ""} {
		for _, conv := range []*domain.Conversation{nil, conversationWith(prev)} {
			plan := planner.Plan(q, conv)
			if plan.Template != domain.TemplateFactual {
				t.Fatalf("%q: expected FACTUAL, got %s", q, plan.Template)
			}
			if !plan.Filter.IsEmpty() {
				t.Fatalf("%q: expected empty filter, got %+v", q, plan.Filter)
			}
			if plan.TopK != DefaultTopK {
				t.Fatalf("%q: expected top_k %d, got %d", q, DefaultTopK, plan.TopK)
			}
		}
	}
}

func TestPlannerTieBreakPrefersComparison(t *testing.T) {
	planner := NewPlanner(PlannerConfig{})
	plan := planner.Plan("Compare the strategic priorities of BMW and Tesla", nil)
	if plan.Template != domain.TemplateComparison {
		t.Fatalf("expected COMPARISON, got %s", plan.Template)
	}
	if plan.TopK != DefaultWideTopK {
		t.Fatalf("expected wide top_k, got %d", plan.TopK)
	}

	plan = planner.Plan("What is the growth strategy of Ford?", nil)
	if plan.Template != domain.TemplateTrend {
		t.Fatalf("expected TREND to win over QUALITATIVE, got %s", plan.Template)
	}
}

func TestPlannerClassifiesSampleQuestions(t *testing.T) {
	planner := NewPlanner(PlannerConfig{})
	bmw, tesla, ford := domain.CompanyBMW, domain.CompanyTesla, domain.CompanyFord

	tests := []struct {
		question  string
		template  domain.TemplateKind
		companies []domain.Company
		years     []int
	}{
		{"What was BMW's total revenue in 2023?", domain.TemplateFactual, []domain.Company{bmw}, []int{2023}},
		{"How much revenue did Tesla generate in 2023?", domain.TemplateFactual, []domain.Company{tesla}, []int{2023}},
		{"What was Ford's revenue for the year 2020?", domain.TemplateFactual, []domain.Company{ford}, []int{2020}},
		{"What key economic factors influenced Ford's performance in 2021?", domain.TemplateQualitative, []domain.Company{ford}, []int{2021}},
		{"Which Tesla product is currently in the development stage?", domain.TemplateQualitative, []domain.Company{tesla}, nil},
		{"What were BMW's profit figures for 2020 and 2023?", domain.TemplateFactual, []domain.Company{bmw}, []int{2020, 2023}},
		{"Between Tesla and Ford, which company achieved higher profits in 2022?", domain.TemplateComparison, []domain.Company{tesla, ford}, []int{2022}},
		{"Which company recorded better profitability in 2022 overall?", domain.TemplateComparison, nil, []int{2022}},
		{"Provide a summary of revenue figures for Tesla, BMW, and Ford over the past three years.", domain.TemplateTrend, []domain.Company{bmw, tesla, ford}, nil},
		{"What were the growth trends for BMW's financial performance from 2020 to 2023?", domain.TemplateTrend, []domain.Company{bmw}, []int{2020, 2021, 2022, 2023}},
		{"Tell me about BMW", domain.TemplateQualitative, []domain.Company{bmw}, nil},
	}

	for _, tt := range tests {
		plan := planner.Plan(tt.question, nil)
		if plan.Template != tt.template {
			t.Fatalf("%q: expected %s, got %s", tt.question, tt.template, plan.Template)
		}
		if !slices.Equal(plan.Filter.Companies, tt.companies) {
			t.Fatalf("%q: expected companies %v, got %v", tt.question, tt.companies, plan.Filter.Companies)
		}
		if !slices.Equal(plan.Filter.Years, tt.years) {
			t.Fatalf("%q: expected years %v, got %v", tt.question, tt.years, plan.Filter.Years)
		}
		if plan.Inherited {
			t.Fatalf("%q: nothing to inherit without a conversation", tt.question)
		}
	}
}

func TestPlannerDetectsMetrics(t *testing.T) {
	plan := NewPlanner(PlannerConfig{}).Plan("What were the growth trends for BMW's financial performance from 2020 to 2023?", nil)
	if !slices.Equal(plan.Metrics, []string{"growth", "performance"}) {
		t.Fatalf("unexpected metrics %v", plan.Metrics)
	}
}

func TestPlannerExpandsYearRangeForEveryTemplate(t *testing.T) {
	plan := NewPlanner(PlannerConfig{}).Plan("Compare BMW and Ford revenue from 2021 to 2023", nil)
	if plan.Template != domain.TemplateComparison {
		t.Fatalf("expected COMPARISON, got %s", plan.Template)
	}
	if !slices.Equal(plan.Filter.Years, []int{2021, 2022, 2023}) {
		t.Fatalf("expected 2021 through 2023, got %v", plan.Filter.Years)
	}

	plan = NewPlanner(PlannerConfig{}).Plan("What was Tesla's revenue from 2022 to 2023?", nil)
	if !slices.Equal(plan.Filter.Years, []int{2022, 2023}) {
		t.Fatalf("expected 2022 and 2023, got %v", plan.Filter.Years)
	}
}

func TestPlannerFollowUpInheritsMissingDimension(t *testing.T) {
	planner := NewPlanner(PlannerConfig{})
	conv := conversationWith(domain.QueryPlan{
		Template: domain.TemplateFactual,
		Filter:   domain.Filter{Companies: []domain.Company{domain.CompanyBMW}, Years: []int{2023}},
		Metrics:  []string{"revenue"},
	})

	plan := planner.Plan("what about 2022?", conv)
	want := domain.Filter{Companies: []domain.Company{domain.CompanyBMW}, Years: []int{2022}}
	if !slices.Equal(plan.Filter.Companies, want.Companies) || !slices.Equal(plan.Filter.Years, want.Years) {
		t.Fatalf("expected %+v, got %+v", want, plan.Filter)
	}
	if !plan.Inherited {
		t.Fatalf("expected plan to be marked inherited")
	}
	if !slices.Equal(plan.Metrics, []string{"revenue"}) {
		t.Fatalf("expected inherited metric, got %v", plan.Metrics)
	}
}

func TestPlannerFollowUpShiftsRelativeYear(t *testing.T) {
	planner := NewPlanner(PlannerConfig{})
	conv := conversationWith(domain.QueryPlan{
		Template: domain.TemplateFactual,
		Filter:   domain.Filter{Companies: []domain.Company{domain.CompanyFord}, Years: []int{2021}},
	})

	plan := planner.Plan("and in the following year?", conv)
	if !slices.Equal(plan.Filter.Companies, []domain.Company{domain.CompanyFord}) || !slices.Equal(plan.Filter.Years, []int{2022}) {
		t.Fatalf("expected Ford 2022, got %+v", plan.Filter)
	}
}

func TestPlannerComparisonFollowUpKeepsPreviousCompany(t *testing.T) {
	planner := NewPlanner(PlannerConfig{})
	conv := conversationWith(domain.QueryPlan{
		Template: domain.TemplateFactual,
		Filter:   domain.Filter{Companies: []domain.Company{domain.CompanyBMW}, Years: []int{2023}},
	})

	plan := planner.Plan("How does that compare to Tesla?", conv)
	if plan.Template != domain.TemplateComparison {
		t.Fatalf("expected COMPARISON, got %s", plan.Template)
	}
	if !slices.Equal(plan.Filter.Companies, []domain.Company{domain.CompanyBMW, domain.CompanyTesla}) {
		t.Fatalf("expected BMW and Tesla, got %v", plan.Filter.Companies)
	}
	if !slices.Equal(plan.Filter.Years, []int{2023}) {
		t.Fatalf("expected inherited 2023, got %v", plan.Filter.Years)
	}
}

func TestPlannerFollowUpPolicies(t *testing.T) {
	prev := domain.QueryPlan{
		Template: domain.TemplateFactual,
		Filter:   domain.Filter{Companies: []domain.Company{domain.CompanyBMW}, Years: []int{2023}},
	}

	whole := NewPlanner(PlannerConfig{FollowUp: FollowUpWhole})
	plan := whole.Plan("what about 2022?", conversationWith(prev))
	if len(plan.Filter.Companies) != 0 || !slices.Equal(plan.Filter.Years, []int{2022}) {
		t.Fatalf("whole policy must not inherit when an entity is named, got %+v", plan.Filter)
	}
	plan = whole.Plan("what about their profit?", conversationWith(prev))
	if !slices.Equal(plan.Filter.Companies, prev.Filter.Companies) || !slices.Equal(plan.Filter.Years, prev.Filter.Years) {
		t.Fatalf("whole policy should inherit the full filter, got %+v", plan.Filter)
	}

	none := NewPlanner(PlannerConfig{FollowUp: FollowUpNone})
	plan = none.Plan("what about their profit?", conversationWith(prev))
	if !plan.Filter.IsEmpty() || plan.Inherited {
		t.Fatalf("none policy must not inherit, got %+v", plan)
	}
}

func TestPlannerInheritsOnlyFromLastTurn(t *testing.T) {
	planner := NewPlanner(PlannerConfig{})
	conv := conversationWith(
		domain.QueryPlan{Filter: domain.Filter{Companies: []domain.Company{domain.CompanyTesla}}},
		domain.QueryPlan{},
	)
	plan := planner.Plan("what about 2022?", conv)
	if len(plan.Filter.Companies) != 0 {
		t.Fatalf("expected no company from an older turn, got %v", plan.Filter.Companies)
	}
}

func TestPlannerMatchesAliasesOnWordBoundaries(t *testing.T) {
	planner := NewPlanner(PlannerConfig{})

	plan := planner.Plan("Bayerische Motoren Werke revenue 2022", nil)
	if !slices.Equal(plan.Filter.Companies, []domain.Company{domain.CompanyBMW}) {
		t.Fatalf("expected alias to resolve to BMW, got %v", plan.Filter.Companies)
	}
	plan = planner.Plan("Fordham revenue in 2022", nil)
	if len(plan.Filter.Companies) != 0 {
		t.Fatalf("expected no company match inside a longer word, got %v", plan.Filter.Companies)
	}
	plan = planner.Plan("revenue in 12023 and 2023", nil)
	if !slices.Equal(plan.Filter.Years, []int{2023}) {
		t.Fatalf("expected only the standalone year, got %v", plan.Filter.Years)
	}
}

func TestPlannerSupportsConfiguredCompanies(t *testing.T) {
	planner := NewPlanner(PlannerConfig{
		Companies: []domain.Company{"Volkswagen", domain.CompanyTesla},
		Aliases:   map[domain.Company][]string{"Volkswagen": {"vw"}},
	})
	plan := planner.Plan("Compare VW and Tesla deliveries in 2023", nil)
	if !slices.Equal(plan.Filter.Companies, []domain.Company{"Volkswagen", domain.CompanyTesla}) {
		t.Fatalf("unexpected companies %v", plan.Filter.Companies)
	}
}

func TestPlannerWideTopKNeverBelowTopK(t *testing.T) {
	planner := NewPlanner(PlannerConfig{TopK: 20, WideTopK: 10})
	if got := planner.Plan("compare BMW and Ford", nil).TopK; got != 20 {
		t.Fatalf("expected wide top_k raised to 20, got %d", got)
	}
}

func TestParseFollowUpPolicy(t *testing.T) {
	for raw, want := range map[string]FollowUpPolicy{
		"":              FollowUpPerDimension,
		"per-dimension": FollowUpPerDimension,
		"WHOLE":         FollowUpWhole,
		" none ":        FollowUpNone,
	} {
		got, err := ParseFollowUpPolicy(raw)
		if err != nil || got != want {
			t.Fatalf("ParseFollowUpPolicy(%q) = %q, %v", raw, got, err)
		}
	}
	if _, err := ParseFollowUpPolicy("sometimes"); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
