package scoring

// Keyword tables driving the deterministic ATS score. Matching is
// case-insensitive substring search, so multi-word entries like
// "machine learning" match as written in the resume.

var technicalKeywords = []string{
	"python", "java", "javascript", "typescript", "c++", "sql",
	"aws", "azure", "gcp", "docker", "kubernetes", "git",
	"react", "node.js", "machine learning", "data analysis",
	"tensorflow", "pytorch", "pandas", "numpy",
	"mongodb", "postgresql", "redis", "graphql",
	"rest api", "microservices", "ci/cd", "agile", "scrum", "devops",
}

var softKeywords = []string{
	"leadership", "communication", "teamwork", "problem-solving",
	"critical thinking", "adaptability", "time management",
	"collaboration", "creativity", "attention to detail",
	"project management", "mentoring", "strategic thinking",
}

var actionVerbs = []string{
	"achieved", "implemented", "developed", "managed", "led",
	"designed", "optimized", "increased", "reduced", "delivered",
	"created", "analyzed", "streamlined", "spearheaded", "architected",
	"mentored", "automated", "launched", "built", "transformed",
}
