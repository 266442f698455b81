package autowriter

import (
	"strings"

	"github.com/Aman-CERP/autowriter/internal/generate"
)

// RuleEvidenceID marks listings written from highlights alone.
const RuleEvidenceID = "rule:highlights"

const (
	placeholderBullet = "Details available upon request"

	fallbackEnglish = "Premium, clean presentation based strictly on verified seller highlights: %s. " +
		"This auction description avoids assumptions and does not add unconfirmed features. " +
		"For serious buyers, please confirm exact specs such as mileage, engine details, and factory options before bidding. " +
		"The goal here is clarity and confidence, highlighting only what is known and keeping the tone professional and auction-ready. " +
		"If you need additional details, request a full inspection report or supporting documents so the final listing can be updated with evidence-backed information."

	fallbackArabic = "عرض مميز ونظيف يعتمد حصراً على المعلومات المؤكدة من البائع: %s. " +
		"هذا الوصف يتجنب الافتراضات ولا يضيف ميزات غير مؤكدة. " +
		"للجدية، يرجى تأكيد المواصفات مثل المسافة المقطوعة، تفاصيل المحرك، والخيارات الأصلية قبل المزايدة. " +
		"الهدف هو الوضوح والثقة مع أسلوب احترافي مناسب للمزاد. " +
		"إذا كنت تحتاج تفاصيل إضافية، اطلب تقرير فحص أو مستندات داعمة حتى يتم تحديث الوصف بمعلومات مثبتة."
)

// Fallback writes a conservative bilingual listing from the highlights
// alone. It never fails.
func Fallback(highlights string, entities generate.Entities, tax *Taxonomy) *generate.Output {
	highlights = strings.TrimSpace(highlights)
	en, ar := highlights, highlights
	if highlights == "" {
		en, ar = "No highlights provided", "لم يتم تقديم تفاصيل"
	}
	description := strings.Replace(fallbackEnglish, "%s", en, 1) + " " + strings.Replace(fallbackArabic, "%s", ar, 1)

	bullets := make([]string, 0, MaxBullets)
	for _, part := range splitHighlights(highlights) {
		if len(bullets) == MaxBullets {
			break
		}
		bullets = append(bullets, part)
	}
	for len(bullets) < MinBullets {
		bullets = append(bullets, placeholderBullet)
	}

	keywords := tax.ExtractTags(highlights)
	if len(keywords) > MaxKeywords {
		keywords = keywords[:MaxKeywords]
	}

	return &generate.Output{
		DescriptionParagraph: description,
		BulletHighlights:     bullets,
		Keywords:             keywords,
		Warnings:             missingWarnings(entities),
		DetectedEntities:     entities,
		Evidence:             []generate.EvidenceNote{{ChunkID: RuleEvidenceID, Note: "Used user highlights only."}},
	}
}

// splitHighlights splits on Latin and Arabic commas.
func splitHighlights(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '،' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Join(strings.Fields(p), " ")
		if p != "" && len([]rune(p)) <= MaxBulletLen {
			out = append(out, p)
		}
	}
	return out
}

func missingWarnings(e generate.Entities) []string {
	warnings := []string{}
	checks := []struct {
		name string
		msg  string
	}{
		{"make", WarnNoMake},
		{"model", WarnNoModel},
		{"year", WarnNoYear},
		{"mileage", WarnNoMileage},
		{"transmission", WarnNoTrans},
		{"engine", WarnNoEngine},
	}
	for _, c := range checks {
		if e.Field(c.name).IsNull() {
			warnings = append(warnings, c.msg)
		}
	}
	return warnings
}
