package render

// articleCSS is embedded verbatim in every published page. It is not configurable.
const articleCSS = `
:root {
  --primary: #F5D104;
  --primary-dark: #D4B503;
  --bg-dark: #1a1a2e;
  --text-color: #374151;
  --text-muted: #6b7280;
  --border-color: #e5e7eb;
  --bg-light: #f9fafb;
}

* {
  box-sizing: border-box;
  margin: 0;
  padding: 0;
}

body {
  font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, 'Noto Sans SC', sans-serif;
  background: linear-gradient(135deg, #f8fafc 0%, #e2e8f0 100%);
  min-height: 100vh;
  color: var(--text-color);
  line-height: 1.8;
}

.container {
  max-width: 800px;
  margin: 0 auto;
  padding: 40px 20px;
}

.article {
  background: #fff;
  border-radius: 16px;
  padding: 48px;
  box-shadow: 0 4px 24px rgba(0, 0, 0, 0.08);
}

.article-header {
  margin-bottom: 32px;
  padding-bottom: 24px;
  border-bottom: 1px solid var(--border-color);
}

.article-title {
  font-size: 32px;
  font-weight: 700;
  color: var(--bg-dark);
  line-height: 1.4;
  margin-bottom: 16px;
}

.article-meta {
  display: flex;
  flex-wrap: wrap;
  gap: 16px;
  font-size: 13px;
  color: var(--text-muted);
}

.meta-item {
  display: flex;
  align-items: center;
  gap: 6px;
}

.article-content {
  font-size: 16px;
}

.article-content h1,
.article-content h2,
.article-content h3,
.article-content h4,
.article-content h5,
.article-content h6 {
  margin-top: 28px;
  margin-bottom: 16px;
  font-weight: 600;
  color: var(--bg-dark);
  line-height: 1.4;
}

.article-content h1 { font-size: 2em; border-bottom: 1px solid var(--border-color); padding-bottom: 0.3em; }
.article-content h2 { font-size: 1.5em; border-bottom: 1px solid var(--border-color); padding-bottom: 0.3em; }
.article-content h3 { font-size: 1.25em; }
.article-content h4 { font-size: 1em; }

.article-content p {
  margin: 0 0 16px 0;
}

.article-content a {
  color: var(--primary-dark);
  text-decoration: none;
}

.article-content a:hover {
  color: var(--primary);
  text-decoration: underline;
}

.article-content code {
  background: #f3f4f6;
  padding: 2px 6px;
  border-radius: 4px;
  font-family: 'Monaco', 'Menlo', 'Consolas', monospace;
  font-size: 0.9em;
  color: #ef4444;
}

.article-content pre {
  background: #1f2937;
  color: #e5e7eb;
  padding: 20px;
  border-radius: 10px;
  overflow-x: auto;
  margin: 20px 0;
}

.article-content pre code {
  background: none;
  color: inherit;
  padding: 0;
  font-size: 14px;
}

.article-content blockquote {
  margin: 20px 0;
  padding: 16px 24px;
  border-left: 4px solid var(--primary);
  background: #fefce8;
  color: var(--text-muted);
  border-radius: 0 8px 8px 0;
}

.article-content blockquote p:last-child {
  margin-bottom: 0;
}

.article-content ul,
.article-content ol {
  margin: 16px 0;
  padding-left: 2em;
}

.article-content li {
  margin: 8px 0;
}

.article-content li input[type="checkbox"] {
  margin-right: 8px;
}

.article-content del {
  color: var(--text-muted);
}

.article-content table {
  width: 100%;
  border-collapse: collapse;
  margin: 20px 0;
}

.article-content th,
.article-content td {
  border: 1px solid var(--border-color);
  padding: 12px 16px;
  text-align: left;
}

.article-content th {
  background: var(--bg-light);
  font-weight: 600;
}

.article-content tr:nth-child(even) {
  background: var(--bg-light);
}

.article-content img {
  max-width: 100%;
  height: auto;
  border-radius: 8px;
  margin: 20px 0;
}

.article-content hr {
  border: none;
  border-top: 1px solid var(--border-color);
  margin: 32px 0;
}

.footer {
  margin-top: 32px;
  padding-top: 24px;
  border-top: 1px solid var(--border-color);
  text-align: center;
  font-size: 12px;
  color: var(--text-muted);
}

.footer a {
  color: var(--primary-dark);
  text-decoration: none;
}

.footer a:hover {
  text-decoration: underline;
}

@media (max-width: 768px) {
  .container {
    padding: 20px 16px;
  }

  .article {
    padding: 28px 20px;
    border-radius: 12px;
  }

  .article-title {
    font-size: 24px;
  }

  .article-meta {
    flex-direction: column;
    gap: 8px;
  }

  .article-content {
    font-size: 15px;
  }
}

@media (max-width: 480px) {
  .article {
    padding: 20px 16px;
  }

  .article-title {
    font-size: 20px;
  }

  .article-content pre {
    padding: 14px;
    font-size: 13px;
  }
}
`
