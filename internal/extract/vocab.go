package extract

var (
	techKeywords = []string{
		"react", "node", "python", "aws", "kubernetes", "docker", "typescript",
		"postgresql", "mongodb", "redis", "kafka", "jenkins", "terraform",
	}

	tweetTechKeywords = []string{
		"aws", "docker", "kubernetes", "react", "node", "python", "typescript",
	}

	securityKeywords = []string{
		"security", "authentication", "authorization", "encryption",
		"vpn", "firewall", "penetration", "vulnerability",
	}

	jobDetailKeywords = []string{"responsibilities", "infrastructure"}

	workKeywords = []string{
		"work", "job", "office", "team", "project", "deployment", "release", "sprint",
	}
)
