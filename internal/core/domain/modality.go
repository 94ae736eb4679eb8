package domain

import "strings"

// Modality is an imaging scan type consumed by the analysis pipeline.
type Modality string

const (
	ModalityT1    Modality = "T1"
	ModalityT2    Modality = "T2"
	ModalityT1CE  Modality = "T1CE"
	ModalityFLAIR Modality = "FLAIR"
)

func AllModalities() []Modality {
	return []Modality{ModalityT1, ModalityT2, ModalityT1CE, ModalityFLAIR}
}

// RequiredModalities are the scans admission insists on.
func RequiredModalities() []Modality {
	return []Modality{ModalityT1, ModalityT2}
}

// ClassifyScanFilename maps a filename to a modality tag using the
// case-insensitive substring rules the upload frontend depends on. The
// precedence and exclusions ("t10" is not T1, "t20" is not T2) are
// intentionally heuristic; changing them is a compatibility break.
func ClassifyScanFilename(filename string) (Modality, bool) {
	name := strings.ToLower(filename)
	switch {
	case strings.Contains(name, "t1ce"),
		strings.Contains(name, "t1_ce"),
		strings.Contains(name, "t1-ce"):
		return ModalityT1CE, true
	case strings.Contains(name, "t1") &&
		!strings.Contains(name, "ce") &&
		!strings.Contains(name, "t10"):
		return ModalityT1, true
	case strings.Contains(name, "t2") &&
		!strings.Contains(name, "t2*") &&
		!strings.Contains(name, "t20"):
		return ModalityT2, true
	case strings.Contains(name, "flair"):
		return ModalityFLAIR, true
	default:
		return "", false
	}
}
