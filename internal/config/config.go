package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          int
	DataPath      string
	DBPath        string
	AssemblyAIKey string
	DeepgramKey   string
	CORSOrigins   []string
}

func Load() *Config {
	// Local development keeps provider keys in a .env file; a missing file is fine.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[config] could not load .env: %v", err)
	}

	port, _ := strconv.Atoi(getEnv("PORT", "4000"))
	dataPath := getEnv("DATA_PATH", "./data")

	assemblyAIKey := os.Getenv("ASSEMBLYAI_API_KEY")
	deepgramKey := os.Getenv("DEEPGRAM_API_KEY")
	if assemblyAIKey == "" && deepgramKey == "" {
		log.Println("WARNING: neither ASSEMBLYAI_API_KEY nor DEEPGRAM_API_KEY is set, transcription requests will fail")
	}

	// CORS origins: comma-separated list or "*" (default)
	corsOrigins := []string{"*"}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		corsOrigins = make([]string, 0, len(origins))
		for _, o := range origins {
			o = strings.TrimSpace(o)
			if o != "" {
				corsOrigins = append(corsOrigins, o)
			}
		}
	}

	return &Config{
		Port:          port,
		DataPath:      dataPath,
		DBPath:        getEnv("DB_PATH", dataPath+"/podscribe.db"),
		AssemblyAIKey: assemblyAIKey,
		DeepgramKey:   deepgramKey,
		CORSOrigins:   corsOrigins,
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
