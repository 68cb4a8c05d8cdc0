package adapter

import (
	"regexp"

	"exam-practice-service/internal/domain"
)

// The backends host question images on a file-sharing service whose "file
// view" links are not embeddable cross-origin. Each subject deployment
// settled on a different direct-content template, but the file-ID
// extraction is shared.
var driveFilePattern = regexp.MustCompile(`(?i)/file/d/([^/]+)/`)

// Strategy carries the per-subject differences the generic adapter is
// parameterized by. Everything else (envelope normalization, caching,
// fallback policy) is identical across subjects.
type Strategy struct {
	Subject domain.Subject
	// RewriteImageURL maps a file-view link to an embeddable URL. Nil
	// leaves URLs untouched.
	RewriteImageURL func(url string) string
}

func rewriteWithTemplate(rawURL string, build func(fileID string) string) string {
	m := driveFilePattern.FindStringSubmatch(rawURL)
	if len(m) < 2 {
		return rawURL
	}
	return build(m[1])
}

// GoogleContentRewrite produces the lh3.googleusercontent form, which
// caches best for inline rendering.
func GoogleContentRewrite(rawURL string) string {
	return rewriteWithTemplate(rawURL, func(id string) string {
		return "https://lh3.googleusercontent.com/d/" + id + "=w1200"
	})
}

// ThumbnailRewrite produces the drive thumbnail form, which sidesteps CORS
// on the deployments that still block direct content.
func ThumbnailRewrite(rawURL string) string {
	return rewriteWithTemplate(rawURL, func(id string) string {
		return "https://drive.google.com/thumbnail?id=" + id + "&sz=w1000"
	})
}

func BiologyStrategy() Strategy {
	return Strategy{Subject: domain.SubjectBiology, RewriteImageURL: GoogleContentRewrite}
}

func ChemistryStrategy() Strategy {
	return Strategy{Subject: domain.SubjectChemistry, RewriteImageURL: GoogleContentRewrite}
}

func PhysicsStrategy() Strategy {
	return Strategy{Subject: domain.SubjectPhysics, RewriteImageURL: ThumbnailRewrite}
}

// StrategyFor returns the strategy registered for a subject.
func StrategyFor(subject domain.Subject) Strategy {
	switch subject {
	case domain.SubjectChemistry:
		return ChemistryStrategy()
	case domain.SubjectPhysics:
		return PhysicsStrategy()
	default:
		return BiologyStrategy()
	}
}
