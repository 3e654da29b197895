package billing

import (
	"errors"
	"time"

	"github.com/riderfin/riderfin/app/models"
)

// Plan describes a paid tier offered at checkout.
type Plan struct {
	Type         models.PlanType `json:"type"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Price        float64         `json:"price"`
	BillingCycle string          `json:"billing_cycle"`
	CycleLength  time.Duration   `json:"-"`
	Features     []string        `json:"features"`
}

const monthlyCycle = 30 * 24 * time.Hour

var plans = map[models.PlanType]Plan{
	models.PlanBasic: {
		Type:         models.PlanBasic,
		Name:         "Básico",
		Description:  "Funcionalidades essenciais para motoristas",
		Price:        9.90,
		BillingCycle: "MONTHLY",
		CycleLength:  monthlyCycle,
		Features: []string{
			"Controle de receitas e gastos",
			"Metas básicas",
			"Relatórios simples",
			"Até 500 transações/mês",
		},
	},
	models.PlanPro: {
		Type:         models.PlanPro,
		Name:         "Profissional",
		Description:  "Para motoristas que querem maximizar lucros",
		Price:        19.90,
		BillingCycle: "MONTHLY",
		CycleLength:  monthlyCycle,
		Features: []string{
			"Tudo do plano Básico",
			"Metas avançadas e automações",
			"Relatórios detalhados com gráficos",
			"Transações ilimitadas",
			"Suporte prioritário",
		},
	},
	models.PlanPremium: {
		Type:         models.PlanPremium,
		Name:         "Premium",
		Description:  "Para frotas e múltiplos veículos",
		Price:        39.90,
		BillingCycle: "MONTHLY",
		CycleLength:  monthlyCycle,
		Features: []string{
			"Tudo do plano Profissional",
			"Múltiplos veículos",
			"Gestão de equipe",
			"Relatórios personalizados",
		},
	},
}

// ErrUnknownPlan is returned for plan types outside the closed tier set.
var ErrUnknownPlan = errors.New("unknown plan type")

// GetPlan resolves a plan tier from the catalog.
func GetPlan(planType models.PlanType) (Plan, error) {
	p, ok := plans[planType]
	if !ok {
		return Plan{}, ErrUnknownPlan
	}
	return p, nil
}

// ListPlans returns the plan catalog in tier order.
func ListPlans() []Plan {
	out := make([]Plan, 0, len(plans))
	for _, t := range []models.PlanType{models.PlanBasic, models.PlanPro, models.PlanPremium} {
		out = append(out, plans[t])
	}
	return out
}
